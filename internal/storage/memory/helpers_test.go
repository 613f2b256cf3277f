package memory

import (
	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
)

func addr(label string) domain.Address {
	return domain.AddressFromLabel(label)
}

func u(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

func snapshot(label string, owner domain.Address, createdAt int64) *domain.PoolSnapshot {
	return &domain.PoolSnapshot{
		Config: domain.PoolConfig{
			Address:      addr(label),
			Factory:      addr("factory"),
			Owner:        owner,
			StakedToken:  addr("stk"),
			RewardSupply: u(1000),
			APYPercent:   10,
			LockTier:     domain.LockThreeMonth,
			LimitPerUser: u(500),
			CreatedAt:    createdAt,
		},
		State:       domain.PoolActive,
		Funded:      true,
		TotalStaked: u(0),
		UpdatedAt:   createdAt,
	}
}

func event(id string, kind domain.EventKind, emitter domain.Address, seq uint64, idx int, ts int64) *domain.Event {
	return &domain.Event{
		EventID:   id,
		Kind:      kind,
		Emitter:   emitter,
		Actor:     addr("alice"),
		TxSeq:     seq,
		LogIndex:  idx,
		Timestamp: ts,
	}
}
