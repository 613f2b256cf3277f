package api

import (
	"fmt"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/feed"
	"fsp-staking/internal/service"
	"fsp-staking/internal/storage"
	"fsp-staking/internal/verification"
)

// Amounts on the wire are decimal strings in base units.

// TxRequest is the body of a pool action.
type TxRequest struct {
	Sender domain.Address `json:"sender"`
	Value  string         `json:"value,omitempty"`
	Amount string         `json:"amount,omitempty"`
}

// TxResponse describes a committed transaction.
type TxResponse struct {
	Seq       uint64       `json:"seq"`
	Timestamp int64        `json:"timestamp"`
	Events    []feed.Event `json:"events"`
}

func txResponse(r *chain.Receipt) TxResponse {
	out := TxResponse{Seq: r.Seq, Timestamp: r.Timestamp, Events: make([]feed.Event, len(r.Events))}
	for i, ev := range r.Events {
		out.Events[i] = feed.FromDomain(ev)
	}
	return out
}

// CreateTokenRequest creates a token and optionally mints it.
type CreateTokenRequest struct {
	Symbol   string        `json:"symbol"`
	Decimals *uint8        `json:"decimals,omitempty"` // Default: 18
	Mints    []MintRequest `json:"mints,omitempty"`
}

// MintRequest credits an account with new tokens or native currency.
type MintRequest struct {
	To     domain.Address `json:"to"`
	Amount string         `json:"amount"`
}

// ApproveRequest sets an allowance.
type ApproveRequest struct {
	Sender  domain.Address `json:"sender"`
	Spender domain.Address `json:"spender"`
	Amount  string         `json:"amount"`
}

// TokenResponse describes a token.
type TokenResponse struct {
	Address     domain.Address `json:"address"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply string         `json:"totalSupply"`
}

func tokenResponse(t service.TokenInfo) TokenResponse {
	return TokenResponse{Address: t.Address, Symbol: t.Symbol, Decimals: t.Decimals, TotalSupply: dec(t.TotalSupply)}
}

// BalanceResponse is a single balance.
type BalanceResponse struct {
	Token   *domain.Address `json:"token,omitempty"`
	Owner   domain.Address  `json:"owner"`
	Balance string          `json:"balance"`
}

// DeployPoolRequest is the body of POST /factory/pools.
type DeployPoolRequest struct {
	Sender            domain.Address `json:"sender"`
	Value             string         `json:"value"`
	StakedToken       domain.Address `json:"stakedToken"`
	ReflectionToken   domain.Address `json:"reflectionToken,omitempty"`
	ReflectionEnabled bool           `json:"reflectionEnabled"`
	RewardSupply      string         `json:"rewardSupply"`
	APYPercent        uint64         `json:"apy"`
	LockTier          uint8          `json:"lockTier"`
	LimitPerUser      string         `json:"limitPerUser"`
	DeferFunding      bool           `json:"deferFunding,omitempty"`
}

// DeployPoolResponse returns the new pool with its transaction.
type DeployPoolResponse struct {
	Pool PoolResponse `json:"pool"`
	Tx   TxResponse   `json:"tx"`
}

// AdminRequest names an account for a factory owner action.
type AdminRequest struct {
	Sender  domain.Address `json:"sender"`
	Account domain.Address `json:"account,omitempty"`
}

// TreasuryWithdrawRequest moves native fees out of the factory.
type TreasuryWithdrawRequest struct {
	Sender domain.Address `json:"sender"`
	To     domain.Address `json:"to"`
	Amount string         `json:"amount"`
}

// FeePairJSON is a fee for pools without and with reflection.
type FeePairJSON struct {
	NonReflection string `json:"nonReflection"`
	Reflection    string `json:"reflection"`
}

// FeeScheduleJSON is the wire form of domain.FeeSchedule.
type FeeScheduleJSON struct {
	Creation          [4]string   `json:"creation"`
	Deposit           FeePairJSON `json:"deposit"`
	Withdraw          FeePairJSON `json:"withdraw"`
	EmergencyWithdraw FeePairJSON `json:"emergencyWithdraw"`
	Claim             FeePairJSON `json:"claim"`
	ReflectionFeeBps  uint64      `json:"reflectionFeeBps"`
}

func feeScheduleJSON(s domain.FeeSchedule) FeeScheduleJSON {
	pair := func(p domain.FeePair) FeePairJSON {
		return FeePairJSON{NonReflection: dec(p.NonReflection), Reflection: dec(p.Reflection)}
	}
	out := FeeScheduleJSON{
		Deposit:           pair(s.Deposit),
		Withdraw:          pair(s.Withdraw),
		EmergencyWithdraw: pair(s.EmergencyWithdraw),
		Claim:             pair(s.Claim),
		ReflectionFeeBps:  s.ReflectionFeeBps,
	}
	for i, c := range s.Creation {
		out.Creation[i] = dec(c)
	}
	return out
}

// toDomain parses every fee; validation of the schedule is the factory's.
func (f FeeScheduleJSON) toDomain() (domain.FeeSchedule, error) {
	var out domain.FeeSchedule
	var err error
	for i, c := range f.Creation {
		if out.Creation[i], err = parseAmount(fmt.Sprintf("creation[%d]", i), c, true); err != nil {
			return out, err
		}
	}
	pairs := []struct {
		name string
		in   FeePairJSON
		out  *domain.FeePair
	}{
		{"deposit", f.Deposit, &out.Deposit},
		{"withdraw", f.Withdraw, &out.Withdraw},
		{"emergencyWithdraw", f.EmergencyWithdraw, &out.EmergencyWithdraw},
		{"claim", f.Claim, &out.Claim},
	}
	for _, p := range pairs {
		if p.out.NonReflection, err = parseAmount(p.name+".nonReflection", p.in.NonReflection, true); err != nil {
			return out, err
		}
		if p.out.Reflection, err = parseAmount(p.name+".reflection", p.in.Reflection, true); err != nil {
			return out, err
		}
	}
	out.ReflectionFeeBps = f.ReflectionFeeBps
	return out, nil
}

// UpdateFeesRequest replaces the fee schedule.
type UpdateFeesRequest struct {
	Sender domain.Address  `json:"sender"`
	Fees   FeeScheduleJSON `json:"fees"`
}

// FactoryResponse describes the factory.
type FactoryResponse struct {
	Address       domain.Address   `json:"address"`
	Owner         domain.Address   `json:"owner"`
	PlatformOwner domain.Address   `json:"platformOwner"`
	Admins        []domain.Address `json:"admins"`
	Fees          FeeScheduleJSON  `json:"fees"`
	Treasury      string           `json:"treasury"`
	PoolCount     int              `json:"poolCount"`
}

// PoolFeesJSON holds the native fees a pool charges per action.
type PoolFeesJSON struct {
	Deposit           string `json:"deposit"`
	Withdraw          string `json:"withdraw"`
	EmergencyWithdraw string `json:"emergencyWithdraw"`
	Claim             string `json:"claim"`
}

// PoolResponse describes a pool.
type PoolResponse struct {
	Address           domain.Address  `json:"address"`
	Factory           domain.Address  `json:"factory"`
	Owner             domain.Address  `json:"owner"`
	StakedToken       domain.Address  `json:"stakedToken"`
	ReflectionToken   *domain.Address `json:"reflectionToken,omitempty"`
	ReflectionEnabled bool            `json:"reflectionEnabled"`
	RewardSupply      string          `json:"rewardSupply"`
	APYPercent        uint64          `json:"apy"`
	LockTier          string          `json:"lockTier"`
	LockTierCode      uint8           `json:"lockTierCode"`
	LimitPerUser      string          `json:"limitPerUser"`
	CreatedAt         int64           `json:"createdAt"`
	State             string          `json:"state"`
	StoppedAt         *int64          `json:"stoppedAt,omitempty"`
	ClosedAt          *int64          `json:"closedAt,omitempty"`
	Funded            bool            `json:"funded"`
	TotalStaked       string          `json:"totalStaked"`
	StakerCount       int             `json:"stakerCount"`
	MaxStake          string          `json:"maxStake,omitempty"`
	TotalOwedReward   string          `json:"totalOwedReward,omitempty"`
	Fees              *PoolFeesJSON   `json:"fees,omitempty"`
	UpdatedAt         int64           `json:"updatedAt"`
}

func snapshotResponse(s *domain.PoolSnapshot) PoolResponse {
	out := PoolResponse{
		Address:           s.Config.Address,
		Factory:           s.Config.Factory,
		Owner:             s.Config.Owner,
		StakedToken:       s.Config.StakedToken,
		ReflectionEnabled: s.Config.ReflectionEnabled,
		RewardSupply:      dec(s.Config.RewardSupply),
		APYPercent:        s.Config.APYPercent,
		LockTier:          s.Config.LockTier.String(),
		LockTierCode:      s.Config.LockTier.Code(),
		LimitPerUser:      dec(s.Config.LimitPerUser),
		CreatedAt:         s.Config.CreatedAt,
		State:             s.State.String(),
		StoppedAt:         s.StoppedAt,
		ClosedAt:          s.ClosedAt,
		Funded:            s.Funded,
		TotalStaked:       dec(s.TotalStaked),
		StakerCount:       s.StakerCount,
		UpdatedAt:         s.UpdatedAt,
	}
	if s.Config.ReflectionEnabled {
		refl := s.Config.ReflectionToken
		out.ReflectionToken = &refl
	}
	return out
}

func poolResponse(v service.PoolView) PoolResponse {
	out := snapshotResponse(&v.Snapshot)
	out.MaxStake = dec(v.MaxStake)
	out.TotalOwedReward = dec(v.TotalOwedReward)
	out.Fees = &PoolFeesJSON{
		Deposit:           dec(v.DepositFee),
		Withdraw:          dec(v.WithdrawFee),
		EmergencyWithdraw: dec(v.EmergencyWithdrawFee),
		Claim:             dec(v.ClaimFee),
	}
	return out
}

// PositionResponse describes a user's position.
type PositionResponse struct {
	Pool              domain.Address `json:"pool"`
	User              domain.Address `json:"user"`
	Exists            bool           `json:"exists"`
	StakedAmount      string         `json:"stakedAmount"`
	DepositTimestamp  int64          `json:"depositTimestamp,omitempty"`
	LastSettlement    int64          `json:"lastSettlement,omitempty"`
	AccruedReward     string         `json:"accruedReward"`
	PendingReward     string         `json:"pendingReward,omitempty"`
	PendingReflection string         `json:"pendingReflection,omitempty"`
}

func positionResponse(p *domain.Position) PositionResponse {
	return PositionResponse{
		Pool:             p.Pool,
		User:             p.User,
		Exists:           true,
		StakedAmount:     dec(p.StakedAmount),
		DepositTimestamp: p.DepositTimestamp,
		LastSettlement:   p.LastSettlement,
		AccruedReward:    dec(p.AccruedReward),
	}
}

func positionViewResponse(v service.PositionView) PositionResponse {
	out := PositionResponse{Pool: v.Pool, User: v.User, StakedAmount: "0", AccruedReward: "0"}
	if v.Position != nil {
		out = positionResponse(v.Position)
	}
	out.PendingReward = dec(v.PendingReward)
	out.PendingReflection = dec(v.PendingReflection)
	return out
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Time         int64  `json:"time"`
	Seq          uint64 `json:"seq"`
	PersistedSeq uint64 `json:"persistedSeq"`
	Lag          uint64 `json:"lag"`
	FeedClients  int    `json:"feedClients"`
}

// ActivityResponse wraps daily aggregates.
type ActivityResponse struct {
	Pool domain.Address            `json:"pool"`
	Days []*storage.DailyActivity `json:"days"`
}

// DivergenceJSON is one stored value the event log does not reproduce.
type DivergenceJSON struct {
	Field    string `json:"field"`
	Stored   string `json:"stored"`
	Replayed string `json:"replayed"`
}

// VerifyResponse is the reconciliation result for one pool.
type VerifyResponse struct {
	Pool        domain.Address   `json:"pool"`
	Match       bool             `json:"match"`
	Events      int              `json:"events"`
	Divergences []DivergenceJSON `json:"divergences"`
}

// VerifyAllResponse summarises reconciliation of every persisted pool.
type VerifyAllResponse struct {
	Total     int              `json:"total"`
	Matched   int              `json:"matched"`
	Divergent int              `json:"divergent"`
	Pools     []VerifyResponse `json:"pools"`
}

func verifyResponse(r *verification.Result) VerifyResponse {
	out := VerifyResponse{Pool: r.Pool, Match: r.Match, Events: r.Events, Divergences: make([]DivergenceJSON, 0, len(r.Divergences))}
	for _, d := range r.Divergences {
		out.Divergences = append(out.Divergences, DivergenceJSON{Field: d.Field, Stored: d.Expected, Replayed: d.Actual})
	}
	return out
}
