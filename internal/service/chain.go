package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"fsp-staking/internal/chain"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/factory"
	"fsp-staking/internal/storage/memory"
	"fsp-staking/internal/token"
)

// Chain bundles the in-process state a Service drives.
type Chain struct {
	Env     *chain.Env
	Tokens  *token.Registry
	Factory *factory.Factory
}

// ChainConfig configures NewChain. Accounts are derived from labels.
type ChainConfig struct {
	Clock         chain.Clock // Default: system clock
	Fees          domain.FeeSchedule
	FactoryLabel  string
	OwnerLabel    string
	PlatformLabel string // Default: OwnerLabel
	Logger        zerolog.Logger
}

// NewChain creates an environment, an empty token registry and a factory.
func NewChain(cfg ChainConfig) (*Chain, error) {
	if cfg.FactoryLabel == "" || cfg.OwnerLabel == "" {
		return nil, fmt.Errorf("new chain: factory and owner labels are required")
	}
	if cfg.PlatformLabel == "" {
		cfg.PlatformLabel = cfg.OwnerLabel
	}
	env := chain.NewEnv(chain.EnvOptions{
		Clock:  cfg.Clock,
		Logger: cfg.Logger.With().Str("component", "chain").Logger(),
	})
	tokens := token.NewRegistry()
	f, err := factory.New(factory.Config{
		Address:       domain.AddressFromLabel(cfg.FactoryLabel),
		Owner:         domain.AddressFromLabel(cfg.OwnerLabel),
		PlatformOwner: domain.AddressFromLabel(cfg.PlatformLabel),
		Fees:          cfg.Fees,
		Bank:          env.Bank(),
		Tokens:        tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("new chain: %w", err)
	}
	return &Chain{Env: env, Tokens: tokens, Factory: f}, nil
}

// MemoryStores returns fresh in-memory stores, analytics included.
func MemoryStores() Stores {
	return Stores{
		Pools:       memory.NewPoolStore(),
		Positions:   memory.NewPositionStore(),
		Events:      memory.NewEventStore(),
		Checkpoints: memory.NewCheckpointStore(),
		Activity:    memory.NewActivityStore(),
	}
}
