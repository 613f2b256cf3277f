package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/factory"
	"fsp-staking/internal/observability"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/service"
	"fsp-staking/internal/units"
)

// ErrExpectation is returned when a step's outcome or a check differs from
// what the scenario states.
var ErrExpectation = errors.New("expectation failed")

// StepResult records what one step did.
type StepResult struct {
	Index  int
	Action string
	As     string
	Time   int64
	Seq    uint64 // 0 when the step did not commit
	Code   string // revert code when the step reverted
	Detail string
}

// Report is the outcome of a run.
type Report struct {
	Name     string
	Steps    []StepResult
	Events   int
	Pools    int // pools reconciled against the event log
	Finished bool
}

// Write prints the report as a table.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scenario: %s\n", r.Name)
	fmt.Fprintln(tw, "#\tACTION\tAS\tTIME\tSEQ\tRESULT\tDETAIL")
	for _, s := range r.Steps {
		result := "ok"
		if s.Code != "" {
			result = "reverted " + s.Code
		}
		seq := "-"
		if s.Seq > 0 {
			seq = fmt.Sprint(s.Seq)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n", s.Index, s.Action, s.As, s.Time, seq, result, s.Detail)
	}
	status := "FAILED"
	if r.Finished {
		status = "PASSED"
	}
	fmt.Fprintf(tw, "%d steps, %d events persisted, %d pools reconciled, %s\n", len(r.Steps), r.Events, r.Pools, status)
	return tw.Flush()
}

// Runner executes scenarios.
type Runner struct {
	log     zerolog.Logger
	metrics *observability.Metrics
}

// NewRunner creates a runner. A nil metrics uses the default registry.
func NewRunner(log zerolog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{log: log.With().Str("component", "scenario").Logger(), metrics: metrics}
}

type tokenRef struct {
	addr     domain.Address
	decimals uint8
}

type run struct {
	sc     *Scenario
	svc    *service.Service
	clock  *chain.ManualClock
	log    zerolog.Logger
	tokens map[string]tokenRef
	pools  map[string]domain.Address
	staked map[domain.Address]tokenRef
}

// Run executes sc from a fresh environment. It stops at the first step whose
// outcome differs from the scenario and returns the partial report.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	fees, err := sc.FeeSchedule()
	if err != nil {
		return nil, err
	}
	clock := chain.NewManualClock(sc.Start)
	c, err := service.NewChain(service.ChainConfig{
		Clock:         clock,
		Fees:          fees,
		FactoryLabel:  sc.Factory.Label,
		OwnerLabel:    sc.Factory.Owner,
		PlatformLabel: sc.Factory.Platform,
		Logger:        r.log,
	})
	if err != nil {
		return nil, err
	}
	svc, err := service.New(service.Options{
		Env:     c.Env,
		Tokens:  c.Tokens,
		Factory: c.Factory,
		Stores:  service.MemoryStores(),
		Metrics: r.metrics,
		Logger:  r.log,
	})
	if err != nil {
		return nil, err
	}
	svc.Start(ctx)
	defer func() { _ = svc.Close(context.WithoutCancel(ctx)) }()

	st := &run{
		sc:     sc,
		svc:    svc,
		clock:  clock,
		log:    r.log,
		tokens: make(map[string]tokenRef),
		pools:  make(map[string]domain.Address),
		staked: make(map[domain.Address]tokenRef),
	}
	report := &Report{Name: sc.Name}
	if err := st.setup(ctx); err != nil {
		return report, fmt.Errorf("setup: %w", err)
	}

	for i := range sc.Steps {
		step := &sc.Steps[i]
		res, err := st.step(ctx, i+1, step)
		report.Steps = append(report.Steps, res)
		if err != nil {
			r.log.Error().Int("step", i+1).Str("action", step.Action).Err(err).Msg("scenario step failed")
			return report, fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		r.log.Debug().Int("step", i+1).Str("action", step.Action).Uint64("seq", res.Seq).Str("code", res.Code).Msg("step done")
	}

	if err := svc.Flush(ctx); err != nil {
		return report, err
	}
	now, err := svc.Now(ctx)
	if err != nil {
		return report, err
	}
	events, err := svc.EventsBetween(ctx, 0, now)
	if err != nil {
		return report, err
	}
	report.Events = len(events)

	verified, err := svc.VerifyAll(ctx)
	if err != nil {
		return report, err
	}
	report.Pools = verified.TotalPools
	if verified.DivergentPools > 0 {
		for _, res := range verified.Results {
			for _, d := range res.Divergences {
				r.log.Error().Str("pool", res.Pool.Short()).Str("field", d.Field).
					Str("stored", d.Expected).Str("replayed", d.Actual).Msg("stored state diverges from event log")
			}
		}
		return report, fmt.Errorf("%d pools diverge from their event log", verified.DivergentPools)
	}
	report.Finished = true
	r.log.Info().Str("scenario", sc.Name).Int("steps", len(report.Steps)).Int("events", report.Events).Msg("scenario passed")
	return report, nil
}

func (st *run) setup(ctx context.Context) error {
	for _, label := range sortedKeys(st.sc.Native) {
		amt, err := units.Parse(st.sc.Native[label], units.NativeDecimals)
		if err != nil {
			return fmt.Errorf("native %s: %w", label, err)
		}
		if _, err := st.svc.MintNative(ctx, st.account(label), amt); err != nil {
			return err
		}
	}
	for _, ts := range st.sc.Tokens {
		decimals := uint8(units.NativeDecimals)
		if ts.Decimals != nil {
			decimals = *ts.Decimals
		}
		t, err := st.svc.CreateToken(ctx, ts.Symbol, decimals)
		if err != nil {
			return err
		}
		ref := tokenRef{addr: t.Address(), decimals: decimals}
		st.tokens[ts.Symbol] = ref
		for _, label := range sortedKeys(ts.Balances) {
			amt, err := units.Parse(ts.Balances[label], decimals)
			if err != nil {
				return fmt.Errorf("%s balance of %s: %w", ts.Symbol, label, err)
			}
			if _, err := st.svc.Mint(ctx, ref.addr, st.account(label), amt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (st *run) step(ctx context.Context, idx int, s *Step) (StepResult, error) {
	res := StepResult{Index: idx, Action: s.Action, As: s.As, Time: st.clock.Now()}

	switch s.Action {
	case ActionAdvance:
		d := s.Days*domain.SecondsPerDay + s.Seconds
		if d <= 0 {
			return res, fmt.Errorf("advance needs a positive duration")
		}
		res.Time = st.clock.Advance(d)
		res.Detail = fmt.Sprintf("+%ds", d)
		return res, nil
	case ActionExpect:
		for i, c := range s.Checks {
			if err := st.check(ctx, c); err != nil {
				return res, fmt.Errorf("check %d: %w", i+1, err)
			}
		}
		res.Detail = fmt.Sprintf("%d checks", len(s.Checks))
		return res, nil
	}

	receipt, detail, err := st.transact(ctx, s)
	res.Detail = detail
	if receipt != nil {
		res.Seq = receipt.Seq
	}
	if err != nil {
		res.Code = reverts.Code(err)
		if s.Error == "" {
			return res, err
		}
		if res.Code != s.Error {
			return res, fmt.Errorf("reverted with %q, want %q: %w", res.Code, s.Error, ErrExpectation)
		}
		return res, nil
	}
	if s.Error != "" {
		return res, fmt.Errorf("committed, want revert %q: %w", s.Error, ErrExpectation)
	}
	return res, nil
}

func (st *run) transact(ctx context.Context, s *Step) (*chain.Receipt, string, error) {
	sender := st.account(s.As)

	switch s.Action {
	case ActionMint:
		tok, err := st.token(s.Token)
		if err != nil {
			return nil, "", err
		}
		amt, err := units.Parse(s.Amount, tok.decimals)
		if err != nil {
			return nil, "", err
		}
		to := sender
		if s.To != "" {
			to = st.spender(s.To)
		}
		r, err := st.svc.Mint(ctx, tok.addr, to, amt)
		return r, s.Amount + " " + s.Token, err

	case ActionAddAdmin:
		r, err := st.svc.AddAdmin(ctx, sender, st.account(s.To))
		return r, s.To, err

	case ActionApprove:
		tok, err := st.token(s.Token)
		if err != nil {
			return nil, "", err
		}
		amt, err := units.Parse(s.Amount, tok.decimals)
		if err != nil {
			return nil, "", err
		}
		r, err := st.svc.Approve(ctx, tok.addr, sender, st.spender(s.Spender), amt)
		return r, fmt.Sprintf("%s %s to %s", s.Amount, s.Token, s.Spender), err

	case ActionDeploy:
		return st.deploy(ctx, s, sender)
	}

	poolAddr, ok := st.pools[s.Pool]
	if !ok {
		return nil, "", fmt.Errorf("unknown pool %q", s.Pool)
	}
	view, err := st.svc.Pool(ctx, poolAddr)
	if err != nil {
		return nil, "", err
	}
	tok := st.staked[poolAddr]

	switch s.Action {
	case ActionDeposit, ActionWithdraw:
		amt, err := units.Parse(s.Amount, tok.decimals)
		if err != nil {
			return nil, "", err
		}
		if s.Action == ActionDeposit {
			value, err := st.value(s, view.DepositFee)
			if err != nil {
				return nil, "", err
			}
			r, err := st.svc.Deposit(ctx, poolAddr, sender, value, amt)
			return r, s.Amount, err
		}
		value, err := st.value(s, view.WithdrawFee)
		if err != nil {
			return nil, "", err
		}
		r, err := st.svc.Withdraw(ctx, poolAddr, sender, value, amt)
		return r, s.Amount, err
	case ActionWithdrawAll:
		value, err := st.value(s, view.WithdrawFee)
		if err != nil {
			return nil, "", err
		}
		r, err := st.svc.WithdrawAll(ctx, poolAddr, sender, value)
		return r, "", err
	case ActionClaim:
		value, err := st.value(s, view.ClaimFee)
		if err != nil {
			return nil, "", err
		}
		r, err := st.svc.ClaimReward(ctx, poolAddr, sender, value)
		return r, "", err
	case ActionEmergencyWithdraw:
		value, err := st.value(s, view.EmergencyWithdrawFee)
		if err != nil {
			return nil, "", err
		}
		r, err := st.svc.EmergencyWithdraw(ctx, poolAddr, sender, value)
		return r, "", err
	case ActionStop:
		r, err := st.svc.StopReward(ctx, poolAddr, sender)
		return r, "", err
	case ActionSweep:
		r, err := st.svc.Sweep(ctx, poolAddr, sender)
		return r, "", err
	case ActionFund:
		r, err := st.svc.Fund(ctx, poolAddr, sender)
		return r, "", err
	}
	return nil, "", fmt.Errorf("unsupported action %q", s.Action)
}

func (st *run) deploy(ctx context.Context, s *Step, sender domain.Address) (*chain.Receipt, string, error) {
	if s.Name == "" {
		return nil, "", fmt.Errorf("deploy needs a pool name")
	}
	if _, dup := st.pools[s.Name]; dup {
		return nil, "", fmt.Errorf("pool %q already deployed", s.Name)
	}
	staked, err := st.token(s.Staked)
	if err != nil {
		return nil, "", err
	}
	req := factory.DeployRequest{
		StakedToken:  staked.addr,
		APYPercent:   s.APY,
		LockTierCode: s.Tier,
		DeferFunding: s.DeferFunding,
	}
	if s.Reflection != "" {
		refl, err := st.token(s.Reflection)
		if err != nil {
			return nil, "", err
		}
		req.ReflectionToken = refl.addr
		req.ReflectionEnabled = true
	}
	if req.RewardSupply, err = units.Parse(s.RewardSupply, staked.decimals); err != nil {
		return nil, "", fmt.Errorf("reward_supply: %w", err)
	}
	if req.LimitPerUser, err = units.Parse(s.Limit, staked.decimals); err != nil {
		return nil, "", fmt.Errorf("limit: %w", err)
	}

	info, err := st.svc.Factory(ctx)
	if err != nil {
		return nil, "", err
	}
	creation := new(uint256.Int)
	if tier, err := domain.LockTierFromCode(s.Tier); err == nil {
		creation = info.Fees.CreationFee(tier)
	}
	value, err := st.value(s, creation)
	if err != nil {
		return nil, "", err
	}

	snap, receipt, err := st.svc.DeployPool(ctx, sender, value, req)
	if err != nil {
		return nil, s.Name, err
	}
	addr := snap.Config.Address
	st.pools[s.Name] = addr
	st.staked[addr] = staked
	return receipt, fmt.Sprintf("%s at %s", s.Name, addr.Short()), nil
}

func (st *run) check(ctx context.Context, c Check) error {
	if c.Treasury != nil {
		info, err := st.svc.Factory(ctx)
		if err != nil {
			return err
		}
		if err := compare("treasury", info.Treasury, *c.Treasury, units.NativeDecimals); err != nil {
			return err
		}
	}

	if c.Balance != nil {
		owner := st.spender(c.Account)
		var bal *uint256.Int
		decimals := uint8(units.NativeDecimals)
		if c.Token == NativeToken {
			b, err := st.svc.NativeBalance(ctx, owner)
			if err != nil {
				return err
			}
			bal = b
		} else {
			tok, err := st.token(c.Token)
			if err != nil {
				return err
			}
			decimals = tok.decimals
			if bal, err = st.svc.TokenBalance(ctx, tok.addr, owner); err != nil {
				return err
			}
		}
		if err := compare(fmt.Sprintf("%s balance of %s", c.Token, c.Account), bal, *c.Balance, decimals); err != nil {
			return err
		}
	}

	if c.Pool == "" {
		if c.PendingReward != nil || c.Staked != nil || c.TotalStaked != nil || c.State != "" {
			return fmt.Errorf("pool checks need a pool")
		}
		return nil
	}
	poolAddr, ok := st.pools[c.Pool]
	if !ok {
		return fmt.Errorf("unknown pool %q", c.Pool)
	}
	tok := st.staked[poolAddr]

	if c.TotalStaked != nil || c.State != "" {
		view, err := st.svc.Pool(ctx, poolAddr)
		if err != nil {
			return err
		}
		if c.TotalStaked != nil {
			if err := compare("total staked", view.Snapshot.TotalStaked, *c.TotalStaked, tok.decimals); err != nil {
				return err
			}
		}
		if c.State != "" && string(view.Snapshot.State) != c.State {
			return fmt.Errorf("pool state %s, want %s: %w", view.Snapshot.State, c.State, ErrExpectation)
		}
	}

	if c.PendingReward != nil || c.Staked != nil {
		pos, err := st.svc.Position(ctx, poolAddr, st.account(c.Account))
		if err != nil {
			return err
		}
		if c.PendingReward != nil {
			if err := compare("pending reward of "+c.Account, pos.PendingReward, *c.PendingReward, tok.decimals); err != nil {
				return err
			}
		}
		if c.Staked != nil {
			staked := new(uint256.Int)
			if pos.Position != nil {
				staked = pos.Position.StakedAmount
			}
			if err := compare("stake of "+c.Account, staked, *c.Staked, tok.decimals); err != nil {
				return err
			}
		}
	}
	return nil
}

func compare(what string, got *uint256.Int, want string, decimals uint8) error {
	w, err := units.Parse(want, decimals)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if got == nil {
		got = new(uint256.Int)
	}
	if !got.Eq(w) {
		return fmt.Errorf("%s is %s, want %s: %w", what, units.Format(got, decimals), want, ErrExpectation)
	}
	return nil
}

// value returns the payment for a call: the override when given, else fee.
func (st *run) value(s *Step, fee *uint256.Int) (*uint256.Int, error) {
	if s.Value == nil {
		return fee, nil
	}
	v, err := units.Parse(*s.Value, units.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return v, nil
}

func (st *run) token(symbol string) (tokenRef, error) {
	t, ok := st.tokens[symbol]
	if !ok {
		return tokenRef{}, fmt.Errorf("unknown token %q", symbol)
	}
	return t, nil
}

func (st *run) account(label string) domain.Address {
	return domain.AddressFromLabel(label)
}

// spender resolves a pool name, "factory", or an account label.
func (st *run) spender(name string) domain.Address {
	if addr, ok := st.pools[name]; ok {
		return addr
	}
	if name == "factory" {
		return st.svc.FactoryAddress()
	}
	return st.account(name)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
