// Package factory deploys staking pools and holds the settings they share:
// the fee schedule, the admin set, the platform owner and the fee treasury.
package factory

import (
	"fmt"

	"github.com/holiman/uint256"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/idhash"
	"fsp-staking/internal/pool"
	"fsp-staking/internal/reverts"
	"fsp-staking/internal/safemath"
	"fsp-staking/internal/token"
)

// TokenResolver looks up a token by address.
type TokenResolver interface {
	Get(addr domain.Address) (token.Token, error)
}

// Config configures a Factory.
type Config struct {
	Address       domain.Address
	Owner         domain.Address
	PlatformOwner domain.Address
	Fees          domain.FeeSchedule
	Bank          *chain.Bank
	Tokens        TokenResolver
}

// Factory deploys and registers pools.
type Factory struct {
	addr          domain.Address
	owner         domain.Address
	platformOwner domain.Address
	fees          domain.FeeSchedule
	admins        map[domain.Address]bool
	bank          *chain.Bank
	tokens        TokenResolver
	pools         []*pool.Pool
	byAddr        map[domain.Address]*pool.Pool
	nonce         uint64
}

// New creates a factory with no pools. The owner starts as the only admin.
func New(cfg Config) (*Factory, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	if cfg.Bank == nil || cfg.Tokens == nil {
		return nil, fmt.Errorf("factory: bank and token resolver are required")
	}
	if cfg.PlatformOwner.IsZero() {
		cfg.PlatformOwner = cfg.Owner
	}
	return &Factory{
		addr:          cfg.Address,
		owner:         cfg.Owner,
		platformOwner: cfg.PlatformOwner,
		fees:          cfg.Fees.Clone(),
		admins:        map[domain.Address]bool{cfg.Owner: true},
		bank:          cfg.Bank,
		tokens:        cfg.Tokens,
		byAddr:        make(map[domain.Address]*pool.Pool),
	}, nil
}

// DeployRequest describes a new pool.
type DeployRequest struct {
	StakedToken       domain.Address
	ReflectionToken   domain.Address
	ReflectionEnabled bool
	RewardSupply      *uint256.Int
	APYPercent        uint64
	LockTierCode      uint8
	LimitPerUser      *uint256.Int
	// DeferFunding leaves the pool unfunded; the owner calls Fund later.
	DeferFunding bool
}

// DeployPool creates a pool owned by the sender. The sender attaches exactly
// the creation fee for the lock tier and, unless funding is deferred, has
// approved the factory for the reward supply.
func (f *Factory) DeployPool(tx *chain.Tx, req DeployRequest) (*pool.Pool, error) {
	var deployed *pool.Pool
	err := tx.Call(func() error {
		tier, err := domain.LockTierFromCode(req.LockTierCode)
		if err != nil {
			return err
		}
		if !req.ReflectionToken.IsZero() && req.ReflectionToken == req.StakedToken {
			return reverts.ErrTokensMustDiffer
		}
		if safemath.IsZero(req.RewardSupply) || safemath.IsZero(req.LimitPerUser) || req.APYPercent == 0 {
			return reverts.ErrZeroAmount
		}
		if err := tx.CollectFee(f.fees.CreationFee(tier), f.addr, reverts.ErrIncorrectPrice); err != nil {
			return err
		}

		staked, err := f.tokens.Get(req.StakedToken)
		if err != nil {
			return err
		}
		var refl token.Token
		if req.ReflectionEnabled {
			if refl, err = f.tokens.Get(req.ReflectionToken); err != nil {
				return err
			}
		}

		addr, _, err := idhash.DerivePoolAddress(f.addr, f.nonce)
		if err != nil {
			return err
		}
		cfg := domain.PoolConfig{
			Address:           addr,
			Factory:           f.addr,
			Owner:             tx.Sender(),
			StakedToken:       req.StakedToken,
			ReflectionEnabled: req.ReflectionEnabled,
			RewardSupply:      req.RewardSupply,
			APYPercent:        req.APYPercent,
			LockTier:          tier,
			LimitPerUser:      req.LimitPerUser,
			CreatedAt:         tx.Now(),
		}
		if req.ReflectionEnabled {
			cfg.ReflectionToken = req.ReflectionToken
		}
		p, err := pool.New(pool.Params{Config: cfg, Registry: f, StakedToken: staked, ReflectionToken: refl})
		if err != nil {
			return err
		}

		f.register(tx, p)
		tx.Emit(domain.Event{
			Kind:    domain.EventPoolCreated,
			Emitter: f.addr,
			Subject: addr,
			Amount:  safemath.Copy(req.RewardSupply),
			Fee:     f.fees.CreationFee(tier),
		})

		if !req.DeferFunding {
			if err := tx.CallAs(f.addr, func() error { return p.Fund(tx) }); err != nil {
				return err
			}
		}
		deployed = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deploy pool: %w", err)
	}
	return deployed, nil
}

func (f *Factory) register(tx *chain.Tx, p *pool.Pool) {
	prevNonce := f.nonce
	prevLen := len(f.pools)
	tx.Record(func() {
		f.nonce = prevNonce
		f.pools = f.pools[:prevLen]
		delete(f.byAddr, p.Address())
	})
	f.nonce++
	f.pools = append(f.pools, p)
	f.byAddr[p.Address()] = p
}
