// Package scenario runs scripted staking sessions described in YAML against
// an in-memory environment with a manual clock.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fsp-staking/internal/config"
	"fsp-staking/internal/domain"
	"fsp-staking/internal/units"
)

// Step actions.
const (
	ActionDeploy            = "deploy"
	ActionFund              = "fund"
	ActionApprove           = "approve"
	ActionDeposit           = "deposit"
	ActionWithdraw          = "withdraw"
	ActionWithdrawAll       = "withdraw_all"
	ActionClaim             = "claim"
	ActionEmergencyWithdraw = "emergency_withdraw"
	ActionStop              = "stop"
	ActionSweep             = "sweep"
	ActionAdvance           = "advance"
	ActionExpect            = "expect"
	ActionMint              = "mint"
	ActionAddAdmin          = "add_admin"
)

// NativeToken names the native currency in balances and checks.
const NativeToken = "native"

// Scenario is a parsed scenario file.
type Scenario struct {
	Name    string            `yaml:"name"`
	Start   int64             `yaml:"start"` // Unix seconds. Default: 1700000000
	Factory FactorySpec       `yaml:"factory"`
	Fees    *FeeSpec          `yaml:"fees"` // Default: config.DefaultFees()
	Native  map[string]string `yaml:"native"`
	Tokens  []TokenSpec       `yaml:"tokens"`
	Steps   []Step            `yaml:"steps"`
}

// FactorySpec names the factory accounts by label.
type FactorySpec struct {
	Label    string `yaml:"label"`    // Default: factory
	Owner    string `yaml:"owner"`    // Default: deployer
	Platform string `yaml:"platform"` // Default: platform
}

// FeePairSpec is a fee pair in whole native units.
type FeePairSpec struct {
	NonReflection string `yaml:"non_reflection"`
	Reflection    string `yaml:"reflection"`
}

// FeeSpec is a fee schedule in whole native units.
type FeeSpec struct {
	Creation          [4]string   `yaml:"creation"`
	Deposit           FeePairSpec `yaml:"deposit"`
	Withdraw          FeePairSpec `yaml:"withdraw"`
	EmergencyWithdraw FeePairSpec `yaml:"emergency_withdraw"`
	Claim             FeePairSpec `yaml:"claim"`
	ReflectionFeeBps  uint64      `yaml:"reflection_fee_bps"`
}

// TokenSpec creates a token with initial balances in whole units.
type TokenSpec struct {
	Symbol   string            `yaml:"symbol"`
	Decimals *uint8            `yaml:"decimals"` // Default: 18
	Balances map[string]string `yaml:"balances"`
}

// Step is one action. Which fields apply depends on Action.
type Step struct {
	Action string `yaml:"action"`
	As     string `yaml:"as"`
	Pool   string `yaml:"pool"`
	Token  string `yaml:"token"`
	Amount string `yaml:"amount"`

	// approve
	Spender string `yaml:"spender"`

	// mint, add_admin
	To string `yaml:"to"`

	// deploy
	Name         string `yaml:"name"`
	Staked       string `yaml:"staked"`
	Reflection   string `yaml:"reflection"`
	RewardSupply string `yaml:"reward_supply"`
	APY          uint64 `yaml:"apy"`
	Tier         uint8  `yaml:"tier"`
	Limit        string `yaml:"limit"`
	DeferFunding bool   `yaml:"defer_funding"`

	// Value overrides the fee attached to the call, in whole native units.
	Value *string `yaml:"value"`

	// advance
	Days    int64 `yaml:"days"`
	Seconds int64 `yaml:"seconds"`

	// expect
	Checks []Check `yaml:"checks"`

	// Error is the revert code the step must fail with.
	Error string `yaml:"error"`
}

// Check asserts one value. Amounts are whole units of the relevant token.
type Check struct {
	Account       string  `yaml:"account"`
	Token         string  `yaml:"token"`
	Pool          string  `yaml:"pool"`
	Balance       *string `yaml:"balance"`
	PendingReward *string `yaml:"pending_reward"`
	Staked        *string `yaml:"staked"`
	TotalStaked   *string `yaml:"total_staked"`
	State         string  `yaml:"state"`
	Treasury      *string `yaml:"treasury"`
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a scenario, rejecting unknown fields, and fills defaults.
func Parse(raw []byte) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Start == 0 {
		sc.Start = 1_700_000_000
	}
	if sc.Factory.Label == "" {
		sc.Factory.Label = "factory"
	}
	if sc.Factory.Owner == "" {
		sc.Factory.Owner = "deployer"
	}
	if sc.Factory.Platform == "" {
		sc.Factory.Platform = "platform"
	}
	if err := sc.validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	known := map[string]bool{
		ActionDeploy: true, ActionFund: true, ActionApprove: true, ActionDeposit: true,
		ActionWithdraw: true, ActionWithdrawAll: true, ActionClaim: true, ActionEmergencyWithdraw: true,
		ActionStop: true, ActionSweep: true, ActionAdvance: true, ActionExpect: true,
		ActionMint: true, ActionAddAdmin: true,
	}
	symbols := make(map[string]bool)
	for _, t := range sc.Tokens {
		if t.Symbol == "" || t.Symbol == NativeToken {
			return fmt.Errorf("scenario: invalid token symbol %q", t.Symbol)
		}
		if symbols[t.Symbol] {
			return fmt.Errorf("scenario: duplicate token %s", t.Symbol)
		}
		symbols[t.Symbol] = true
	}
	for i, st := range sc.Steps {
		if !known[st.Action] {
			return fmt.Errorf("scenario: step %d: unknown action %q", i+1, st.Action)
		}
		if st.Action != ActionAdvance && st.Action != ActionExpect && st.As == "" {
			return fmt.Errorf("scenario: step %d (%s): 'as' is required", i+1, st.Action)
		}
	}
	return nil
}

// FeeSchedule converts the fees section, or returns the default schedule.
func (sc *Scenario) FeeSchedule() (domain.FeeSchedule, error) {
	if sc.Fees == nil {
		return config.DefaultFees(), nil
	}
	f := sc.Fees
	var out domain.FeeSchedule
	var err error
	for i, c := range f.Creation {
		if out.Creation[i], err = units.Parse(c, units.NativeDecimals); err != nil {
			return out, fmt.Errorf("fees.creation[%d]: %w", i, err)
		}
	}
	pairs := []struct {
		name string
		in   FeePairSpec
		out  *domain.FeePair
	}{
		{"deposit", f.Deposit, &out.Deposit},
		{"withdraw", f.Withdraw, &out.Withdraw},
		{"emergency_withdraw", f.EmergencyWithdraw, &out.EmergencyWithdraw},
		{"claim", f.Claim, &out.Claim},
	}
	for _, p := range pairs {
		if p.out.NonReflection, err = units.Parse(p.in.NonReflection, units.NativeDecimals); err != nil {
			return out, fmt.Errorf("fees.%s.non_reflection: %w", p.name, err)
		}
		if p.out.Reflection, err = units.Parse(p.in.Reflection, units.NativeDecimals); err != nil {
			return out, fmt.Errorf("fees.%s.reflection: %w", p.name, err)
		}
	}
	out.ReflectionFeeBps = f.ReflectionFeeBps
	return out, out.Validate()
}
