package api

import (
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/factory"
	"fsp-staking/internal/feed"
	"fsp-staking/internal/units"
)

// Tokens

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) error {
	tokens, err := s.svc.Tokens(r.Context())
	if err != nil {
		return err
	}
	out := make([]TokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = tokenResponse(t)
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	t, err := s.svc.Token(r.Context(), addr)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, tokenResponse(t))
	return nil
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) error {
	var req CreateTokenRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return badRequestf("symbol: required")
	}
	decimals := uint8(units.NativeDecimals)
	if req.Decimals != nil {
		decimals = *req.Decimals
	}
	mints := make([]*uint256.Int, len(req.Mints))
	for i, m := range req.Mints {
		if err := requireAddress("mints.to", m.To); err != nil {
			return err
		}
		amt, err := parseAmount("mints.amount", m.Amount, true)
		if err != nil {
			return err
		}
		mints[i] = amt
	}

	t, err := s.svc.CreateToken(r.Context(), req.Symbol, decimals)
	if err != nil {
		return err
	}
	for i, m := range req.Mints {
		if _, err := s.svc.Mint(r.Context(), t.Address(), m.To, mints[i]); err != nil {
			return err
		}
	}
	info, err := s.svc.Token(r.Context(), t.Address())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, tokenResponse(info))
	return nil
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	var req MintRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("to", req.To); err != nil {
		return err
	}
	amt, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.Mint(r.Context(), addr, req.To, amt))
}

func (s *Server) handleMintNative(w http.ResponseWriter, r *http.Request) error {
	var req MintRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("to", req.To); err != nil {
		return err
	}
	amt, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.MintNative(r.Context(), req.To, amt))
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		return err
	}
	bal, err := s.svc.TokenBalance(r.Context(), addr, owner)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Token: &addr, Owner: owner, Balance: dec(bal)})
	return nil
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		return err
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		return err
	}
	v, err := s.svc.Allowance(r.Context(), addr, owner, spender)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Token: &addr, Owner: owner, Balance: dec(v)})
	return nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	var req ApproveRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("sender", req.Sender); err != nil {
		return err
	}
	if err := requireAddress("spender", req.Spender); err != nil {
		return err
	}
	amt, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.Approve(r.Context(), addr, req.Sender, req.Spender, amt))
}

func (s *Server) handleNativeBalance(w http.ResponseWriter, r *http.Request) error {
	owner, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	bal, err := s.svc.NativeBalance(r.Context(), owner)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Owner: owner, Balance: dec(bal)})
	return nil
}

func (s *Server) handleUserPositions(w http.ResponseWriter, r *http.Request) error {
	user, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	positions, err := s.svc.UserPositions(r.Context(), user)
	if err != nil {
		return err
	}
	out := make([]PositionResponse, len(positions))
	for i, p := range positions {
		out[i] = positionResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// Factory

func (s *Server) handleGetFactory(w http.ResponseWriter, r *http.Request) error {
	info, err := s.svc.Factory(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, FactoryResponse{
		Address:       info.Address,
		Owner:         info.Owner,
		PlatformOwner: info.PlatformOwner,
		Admins:        info.Admins,
		Fees:          feeScheduleJSON(info.Fees),
		Treasury:      dec(info.Treasury),
		PoolCount:     info.PoolCount,
	})
	return nil
}

func (s *Server) handleDeployPool(w http.ResponseWriter, r *http.Request) error {
	var req DeployPoolRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("sender", req.Sender); err != nil {
		return err
	}
	if err := requireAddress("stakedToken", req.StakedToken); err != nil {
		return err
	}
	value, err := parseAmount("value", req.Value, false)
	if err != nil {
		return err
	}
	supply, err := parseAmount("rewardSupply", req.RewardSupply, true)
	if err != nil {
		return err
	}
	limit, err := parseAmount("limitPerUser", req.LimitPerUser, true)
	if err != nil {
		return err
	}

	snap, receipt, err := s.svc.DeployPool(r.Context(), req.Sender, value, factory.DeployRequest{
		StakedToken:       req.StakedToken,
		ReflectionToken:   req.ReflectionToken,
		ReflectionEnabled: req.ReflectionEnabled,
		RewardSupply:      supply,
		APYPercent:        req.APYPercent,
		LockTierCode:      req.LockTier,
		LimitPerUser:      limit,
		DeferFunding:      req.DeferFunding,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, DeployPoolResponse{Pool: snapshotResponse(&snap), Tx: txResponse(receipt)})
	return nil
}

func (s *Server) adminRequest(r *http.Request, needAccount bool) (AdminRequest, error) {
	var req AdminRequest
	if err := parseJSON(r, &req); err != nil {
		return req, err
	}
	if err := requireAddress("sender", req.Sender); err != nil {
		return req, err
	}
	if needAccount {
		if err := requireAddress("account", req.Account); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) error {
	req, err := s.adminRequest(r, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.AddAdmin(r.Context(), req.Sender, req.Account))
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) error {
	admin, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	req, err := s.adminRequest(r, false)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.RemoveAdmin(r.Context(), req.Sender, admin))
}

func (s *Server) handleSetPlatformOwner(w http.ResponseWriter, r *http.Request) error {
	req, err := s.adminRequest(r, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.SetPlatformOwner(r.Context(), req.Sender, req.Account))
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) error {
	req, err := s.adminRequest(r, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.TransferOwnership(r.Context(), req.Sender, req.Account))
}

func (s *Server) handleUpdateFees(w http.ResponseWriter, r *http.Request) error {
	var req UpdateFeesRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("sender", req.Sender); err != nil {
		return err
	}
	fees, err := req.Fees.toDomain()
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.UpdateFees(r.Context(), req.Sender, fees))
}

func (s *Server) handleWithdrawTreasury(w http.ResponseWriter, r *http.Request) error {
	var req TreasuryWithdrawRequest
	if err := parseJSON(r, &req); err != nil {
		return err
	}
	if err := requireAddress("sender", req.Sender); err != nil {
		return err
	}
	if err := requireAddress("to", req.To); err != nil {
		return err
	}
	amt, err := parseAmount("amount", req.Amount, true)
	if err != nil {
		return err
	}
	return s.writeTx(w)(s.svc.WithdrawTreasury(r.Context(), req.Sender, req.To, amt))
}

func (s *Server) handleFactoryEvents(w http.ResponseWriter, r *http.Request) error {
	return s.writeEvents(w, r, s.svc.FactoryAddress())
}

// Pools

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) error {
	var owner *domain.Address
	if raw := r.URL.Query().Get("owner"); raw != "" {
		addr, err := domain.ParseAddress(raw)
		if err != nil {
			return badRequestf("owner: %w", err)
		}
		owner = &addr
	}

	if r.URL.Query().Get("source") == "store" {
		snaps, err := s.svc.PersistedPools(r.Context(), owner)
		if err != nil {
			return err
		}
		out := make([]PoolResponse, len(snaps))
		for i, snap := range snaps {
			out[i] = snapshotResponse(snap)
		}
		writeJSON(w, http.StatusOK, out)
		return nil
	}

	views, err := s.svc.Pools(r.Context())
	if err != nil {
		return err
	}
	out := make([]PoolResponse, 0, len(views))
	for _, v := range views {
		if owner != nil && v.Snapshot.Config.Owner != *owner {
			continue
		}
		out = append(out, poolResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	v, err := s.svc.Pool(r.Context(), addr)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, poolResponse(v))
	return nil
}

func (s *Server) handlePoolPositions(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	positions, err := s.svc.PoolPositions(r.Context(), addr)
	if err != nil {
		return err
	}
	out := make([]PositionResponse, len(positions))
	for i, p := range positions {
		out[i] = positionResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	user, err := pathAddress(r, "user")
	if err != nil {
		return err
	}
	v, err := s.svc.Position(r.Context(), addr, user)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, positionViewResponse(v))
	return nil
}

func (s *Server) handlePoolEvents(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	return s.writeEvents(w, r, addr)
}

func (s *Server) handlePoolActivity(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	now, err := s.svc.Now(r.Context())
	if err != nil {
		return err
	}
	from, err := queryInt64(r, "from", now-30*domain.SecondsPerDay)
	if err != nil {
		return err
	}
	to, err := queryInt64(r, "to", now)
	if err != nil {
		return err
	}
	if from > to {
		return badRequestf("from after to")
	}
	days, err := s.svc.DailyActivity(r.Context(), addr, from, to)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ActivityResponse{Pool: addr, Days: days})
	return nil
}

func (s *Server) handleEventsBetween(w http.ResponseWriter, r *http.Request) error {
	from, err := queryInt64(r, "from", 0)
	if err != nil {
		return err
	}
	now, err := s.svc.Now(r.Context())
	if err != nil {
		return err
	}
	to, err := queryInt64(r, "to", now)
	if err != nil {
		return err
	}
	events, err := s.svc.EventsBetween(r.Context(), from, to)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, eventsJSON(events))
	return nil
}

func (s *Server) writeEvents(w http.ResponseWriter, r *http.Request, emitter domain.Address) error {
	events, err := s.svc.Events(r.Context(), emitter)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, eventsJSON(events))
	return nil
}

func eventsJSON(events []*domain.Event) []feed.Event {
	out := make([]feed.Event, len(events))
	for i, ev := range events {
		out[i] = feed.FromDomain(*ev)
	}
	return out
}

type poolAction func(r *http.Request, pool domain.Address, req TxRequest, value, amount *uint256.Int) (*chain.Receipt, error)

// poolActions maps POST /pools/{addr}/{action} to service calls.
func (s *Server) poolActions() map[string]handlerFunc {
	actions := map[string]struct {
		needAmount bool
		run        poolAction
	}{
		"deposit": {true, func(r *http.Request, p domain.Address, req TxRequest, value, amount *uint256.Int) (*chain.Receipt, error) {
			return s.svc.Deposit(r.Context(), p, req.Sender, value, amount)
		}},
		"withdraw": {true, func(r *http.Request, p domain.Address, req TxRequest, value, amount *uint256.Int) (*chain.Receipt, error) {
			return s.svc.Withdraw(r.Context(), p, req.Sender, value, amount)
		}},
		"withdraw-all": {false, func(r *http.Request, p domain.Address, req TxRequest, value, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.WithdrawAll(r.Context(), p, req.Sender, value)
		}},
		"claim": {false, func(r *http.Request, p domain.Address, req TxRequest, value, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.ClaimReward(r.Context(), p, req.Sender, value)
		}},
		"emergency-withdraw": {false, func(r *http.Request, p domain.Address, req TxRequest, value, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.EmergencyWithdraw(r.Context(), p, req.Sender, value)
		}},
		"stop": {false, func(r *http.Request, p domain.Address, req TxRequest, _, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.StopReward(r.Context(), p, req.Sender)
		}},
		"sweep": {false, func(r *http.Request, p domain.Address, req TxRequest, _, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.Sweep(r.Context(), p, req.Sender)
		}},
		"fund": {false, func(r *http.Request, p domain.Address, req TxRequest, _, _ *uint256.Int) (*chain.Receipt, error) {
			return s.svc.Fund(r.Context(), p, req.Sender)
		}},
	}

	out := make(map[string]handlerFunc, len(actions))
	for name, a := range actions {
		a := a
		out[name] = func(w http.ResponseWriter, r *http.Request) error {
			addr, err := pathAddress(r, "addr")
			if err != nil {
				return err
			}
			var req TxRequest
			if err := parseJSON(r, &req); err != nil {
				return err
			}
			if err := requireAddress("sender", req.Sender); err != nil {
				return err
			}
			value, err := parseAmount("value", req.Value, false)
			if err != nil {
				return err
			}
			amount, err := parseAmount("amount", req.Amount, a.needAmount)
			if err != nil {
				return err
			}
			return s.writeTx(w)(a.run(r, addr, req, value, amount))
		}
	}
	return out
}

// writeTx returns a function that writes a receipt or passes the error on.
func (s *Server) writeTx(w http.ResponseWriter) func(*chain.Receipt, error) error {
	return func(receipt *chain.Receipt, err error) error {
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, txResponse(receipt))
		return nil
	}
}

// handleVerifyPool waits for persistence to catch up, then reconciles the
// pool's stored state with its stored events.
func (s *Server) handleVerifyPool(w http.ResponseWriter, r *http.Request) error {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		return err
	}
	if err := s.svc.Flush(r.Context()); err != nil {
		return err
	}
	res, err := s.svc.Verify(r.Context(), addr)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, verifyResponse(res))
	return nil
}

func (s *Server) handleVerifyAll(w http.ResponseWriter, r *http.Request) error {
	if err := s.svc.Flush(r.Context()); err != nil {
		return err
	}
	report, err := s.svc.VerifyAll(r.Context())
	if err != nil {
		return err
	}
	out := VerifyAllResponse{
		Total:     report.TotalPools,
		Matched:   report.MatchedPools,
		Divergent: report.DivergentPools,
		Pools:     make([]VerifyResponse, 0, len(report.Results)),
	}
	for i := range report.Results {
		out.Pools = append(out.Pools, verifyResponse(&report.Results[i]))
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}
