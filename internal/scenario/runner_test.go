package scenario

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsp-staking/internal/observability"
)

func newRunner() *Runner {
	return NewRunner(zerolog.Nop(), observability.NewMetrics("scenario_test", prometheus.NewRegistry()))
}

func TestParse_Defaults(t *testing.T) {
	sc, err := Parse([]byte(`
name: empty
steps:
  - action: advance
    days: 1
`))
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), sc.Start)
	assert.Equal(t, "factory", sc.Factory.Label)
	assert.Equal(t, "deployer", sc.Factory.Owner)
	assert.Equal(t, "platform", sc.Factory.Platform)

	fees, err := sc.FeeSchedule()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), fees.ReflectionFeeBps)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"unknown field", "name: x\nstepz: []\n", "stepz"},
		{"unknown action", "steps:\n  - action: teleport\n    as: alice\n", "unknown action"},
		{"missing sender", "steps:\n  - action: claim\n    pool: main\n", "'as' is required"},
		{"native symbol", "tokens:\n  - symbol: native\n", "invalid token symbol"},
		{"duplicate token", "tokens:\n  - symbol: STK\n  - symbol: STK\n", "duplicate token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFeeSchedule_Custom(t *testing.T) {
	sc, err := Parse([]byte(`
fees:
  creation: ["4", "3", "2", "1"]
  deposit: {non_reflection: "0.1", reflection: "0.2"}
  withdraw: {non_reflection: "0.01", reflection: "0.02"}
  emergency_withdraw: {non_reflection: "0.4", reflection: "0.4"}
  claim: {non_reflection: "0.08", reflection: "0.12"}
  reflection_fee_bps: 250
`))
	require.NoError(t, err)
	fees, err := sc.FeeSchedule()
	require.NoError(t, err)
	assert.Equal(t, "4000000000000000000", fees.Creation[0].Dec())
	assert.Equal(t, "200000000000000000", fees.Deposit.Reflection.Dec())
	assert.Equal(t, uint64(250), fees.ReflectionFeeBps)

	sc.Fees.Claim.Reflection = "lots"
	_, err = sc.FeeSchedule()
	assert.ErrorContains(t, err, "fees.claim.reflection")
}

func TestRun_Lifecycle(t *testing.T) {
	sc, err := Load("../../scenarios/lifecycle.yaml")
	require.NoError(t, err)

	report, err := newRunner().Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, report.Finished)
	assert.Len(t, report.Steps, len(sc.Steps))
	assert.Positive(t, report.Events)
	assert.Equal(t, 1, report.Pools)

	var reverted []string
	for _, s := range report.Steps {
		if s.Code != "" {
			reverted = append(reverted, s.Code)
		}
	}
	assert.Equal(t, []string{"LockTimeNotElapsed", "FeeInsufficient", "NotAuthorized", "PoolNotEnded"}, reverted)

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf))
	assert.Contains(t, buf.String(), "three-month pool lifecycle")
	assert.Contains(t, buf.String(), "reverted PoolNotEnded")
	assert.Contains(t, buf.String(), "PASSED")
}

const singlePool = `
name: single
native:
  deployer: "1"
  alice: "1"
tokens:
  - symbol: STK
    balances:
      deployer: "1000"
      alice: "100"
steps:
  - action: approve
    as: deployer
    token: STK
    spender: factory
    amount: "1000"
  - action: deploy
    as: deployer
    name: p
    staked: STK
    reward_supply: "1000"
    apy: 20
    tier: 0
    limit: "100"
  - action: approve
    as: alice
    token: STK
    spender: p
    amount: "100"
  - action: deposit
    as: alice
    pool: p
    amount: "100"
  - action: advance
    days: 365
`

func TestRun_FailedCheck(t *testing.T) {
	sc, err := Parse([]byte(singlePool + `
  - action: expect
    checks:
      - pool: p
        account: alice
        pending_reward: "21"
`))
	require.NoError(t, err)

	report, err := newRunner().Run(context.Background(), sc)
	require.ErrorIs(t, err, ErrExpectation)
	assert.Contains(t, err.Error(), "pending reward of alice is 20")
	assert.False(t, report.Finished)
	assert.Len(t, report.Steps, len(sc.Steps))
}

func TestRun_UnexpectedOutcome(t *testing.T) {
	t.Run("commit when revert expected", func(t *testing.T) {
		sc, err := Parse([]byte(singlePool + `
  - action: withdraw
    as: alice
    pool: p
    amount: "10"
    error: LockTimeNotElapsed
`))
		require.NoError(t, err)
		_, err = newRunner().Run(context.Background(), sc)
		require.ErrorIs(t, err, ErrExpectation)
	})

	t.Run("wrong revert code", func(t *testing.T) {
		sc, err := Parse([]byte(singlePool + `
  - action: stop
    as: alice
    pool: p
    error: NotOwner
`))
		require.NoError(t, err)
		_, err = newRunner().Run(context.Background(), sc)
		require.ErrorIs(t, err, ErrExpectation)
		assert.Contains(t, err.Error(), `"NotAuthorized"`)
	})

	t.Run("unexpected revert", func(t *testing.T) {
		sc, err := Parse([]byte(singlePool + `
  - action: claim
    as: alice
    pool: p
    value: "0"
`))
		require.NoError(t, err)
		report, err := newRunner().Run(context.Background(), sc)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrExpectation)
		assert.Equal(t, "ClaimFeeInsufficient", report.Steps[len(report.Steps)-1].Code)
	})
}

func TestRun_UnknownPool(t *testing.T) {
	sc, err := Parse([]byte(`
steps:
  - action: claim
    as: alice
    pool: nowhere
`))
	require.NoError(t, err)
	_, err = newRunner().Run(context.Background(), sc)
	assert.ErrorContains(t, err, `unknown pool "nowhere"`)
}
