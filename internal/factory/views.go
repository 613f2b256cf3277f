package factory

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"fsp-staking/internal/domain"
	"fsp-staking/internal/pool"
	"fsp-staking/internal/reverts"
)

// Address returns the factory address, which is also the fee treasury.
func (f *Factory) Address() domain.Address { return f.addr }

// Owner returns the factory owner.
func (f *Factory) Owner() domain.Address { return f.owner }

// PlatformOwner returns the reflection fee recipient.
func (f *Factory) PlatformOwner() domain.Address { return f.platformOwner }

// IsPlatformOwner reports whether addr receives the reflection fee.
func (f *Factory) IsPlatformOwner(addr domain.Address) bool { return addr == f.platformOwner }

// IsAdmin reports whether addr may stop any pool.
func (f *Factory) IsAdmin(addr domain.Address) bool { return f.admins[addr] }

// Admins returns the admin set ordered by address.
func (f *Factory) Admins() []domain.Address {
	out := make([]domain.Address, 0, len(f.admins))
	for a := range f.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Fees returns a copy of the fee schedule.
func (f *Factory) Fees() domain.FeeSchedule { return f.fees.Clone() }

// CreationFee returns the deployment price for a lock tier.
func (f *Factory) CreationFee(tier domain.LockTier) (*uint256.Int, error) {
	if !tier.IsValid() {
		return nil, reverts.ErrInvalidLockTier
	}
	return f.fees.CreationFee(tier), nil
}

// TreasuryBalance returns the native currency collected as fees.
func (f *Factory) TreasuryBalance() *uint256.Int { return f.bank.BalanceOf(f.addr) }

// Pools returns every deployed pool in deployment order.
func (f *Factory) Pools() []*pool.Pool {
	out := make([]*pool.Pool, len(f.pools))
	copy(out, f.pools)
	return out
}

// Pool returns the pool at addr.
func (f *Factory) Pool(addr domain.Address) (*pool.Pool, error) {
	p, ok := f.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, reverts.ErrUnknownPool)
	}
	return p, nil
}

var _ pool.Registry = (*Factory)(nil)
