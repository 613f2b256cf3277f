// Package config loads server settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/units"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	HTTPAddr        string
	PostgresDSN     string
	ClickHouseDSN   string
	UseMemory       bool
	LogLevel        string
	LogFormat       string
	FactoryLabel    string
	OwnerLabel      string
	PlatformLabel   string
	PersistQueue    int
	ShutdownTimeout time.Duration
	DevEndpoints    bool
	Fees            domain.FeeSchedule
}

// LoadEnvFile loads variables from path without overriding ones already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load parses args with environment defaults and validates the result.
func Load(name string, args []string, output io.Writer) (*Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	cfg := &Config{Fees: DefaultFees()}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", envString("HTTP_ADDR", ":8080"), "HTTP listen address for API, feed and metrics")
	fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	fs.StringVar(&cfg.ClickHouseDSN, "clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional)")
	fs.BoolVar(&cfg.UseMemory, "use-memory", envBool("USE_MEMORY", false), "Use in-memory storage instead of PostgreSQL")
	fs.StringVar(&cfg.LogLevel, "log-level", envString("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", envString("LOG_FORMAT", "console"), "Log format (console, json)")
	fs.StringVar(&cfg.FactoryLabel, "factory", envString("FACTORY_LABEL", "factory"), "Label the factory address is derived from")
	fs.StringVar(&cfg.OwnerLabel, "owner", envString("FACTORY_OWNER_LABEL", "deployer"), "Label of the factory owner account")
	fs.StringVar(&cfg.PlatformLabel, "platform-owner", envString("PLATFORM_OWNER_LABEL", "platform"), "Label of the platform owner account")
	fs.IntVar(&cfg.PersistQueue, "persist-queue", envInt("PERSIST_QUEUE", 1024), "Committed transactions buffered for persistence")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", envDuration("SHUTDOWN_TIMEOUT", 30*time.Second), "Graceful shutdown timeout")
	fs.BoolVar(&cfg.DevEndpoints, "dev-endpoints", envBool("DEV_ENDPOINTS", true), "Expose token creation and mint endpoints")
	reflectionBps := fs.Uint64("reflection-fee-bps", envUint("REFLECTION_FEE_BPS", cfg.Fees.ReflectionFeeBps), "Platform share of reflection payouts in basis points")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Fees.ReflectionFeeBps = *reflectionBps

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("--http-addr is required")
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return errors.New("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if c.PersistQueue <= 0 {
		return fmt.Errorf("--persist-queue must be positive, got %d", c.PersistQueue)
	}
	if c.FactoryLabel == "" || c.OwnerLabel == "" || c.PlatformLabel == "" {
		return errors.New("factory, owner and platform-owner labels must be set")
	}
	return c.Fees.Validate()
}

// DefaultFees returns the stock fee schedule, in native currency.
func DefaultFees() domain.FeeSchedule {
	eth := func(s string) *uint256.Int { return units.MustParse(s, units.NativeDecimals) }
	return domain.FeeSchedule{
		Creation: [4]*uint256.Int{eth("0.04"), eth("0.03"), eth("0.02"), eth("0.01")},
		Deposit: domain.FeePair{
			NonReflection: eth("0.0075"),
			Reflection:    eth("0.012"),
		},
		Withdraw: domain.FeePair{
			NonReflection: eth("0.001"),
			Reflection:    eth("0.002"),
		},
		EmergencyWithdraw: domain.FeePair{
			NonReflection: eth("0.04"),
			Reflection:    eth("0.04"),
		},
		Claim: domain.FeePair{
			NonReflection: eth("0.008"),
			Reflection:    eth("0.012"),
		},
		ReflectionFeeBps: 100,
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	if v, err := strconv.ParseUint(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
