package reverts

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"sentinel", ErrNoStakers, "NoStakers"},
		{"wrapped", fmt.Errorf("deposit: %w", ErrAmountAboveLimit), "AmountAboveLimit"},
		{"double wrapped", fmt.Errorf("tx: %w", fmt.Errorf("withdraw: %w", ErrLockTimeNotElapsed)), "LockTimeNotElapsed"},
		{
			"transfer failure reports token reason",
			fmt.Errorf("%w: %w", ErrTransferFailed, ErrInsufficientAllowance),
			"InsufficientAllowance",
		},
		{"bare transfer failure", fmt.Errorf("pull: %w", ErrTransferFailed), "TransferFailed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
			assert.Equal(t, tt.want != "", IsRevert(tt.err))
		})
	}
}

func TestCodesAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, c := range codes {
		assert.False(t, seen[c.code], "duplicate code %s", c.code)
		seen[c.code] = true
	}
}
