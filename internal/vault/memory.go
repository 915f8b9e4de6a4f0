package vault

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type balanceKey struct {
	asset  common.Address
	holder common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// MemoryVault is an in-memory, thread-safe Vault and Faucet.
type MemoryVault struct {
	mu         sync.Mutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
}

// NewMemoryVault creates an empty MemoryVault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// BalanceOf implements Vault.
func (v *MemoryVault) BalanceOf(_ context.Context, asset, holder common.Address) (*uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if b, ok := v.balances[balanceKey{asset, holder}]; ok {
		return b.Clone(), nil
	}
	return uint256.NewInt(0), nil
}

// Allowance returns how much spender may still pull from owner.
func (v *MemoryVault) Allowance(asset, owner, spender common.Address) *uint256.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if a, ok := v.allowances[allowanceKey{asset, owner, spender}]; ok {
		return a.Clone()
	}
	return uint256.NewInt(0)
}

// Mint implements Faucet.
func (v *MemoryVault) Mint(_ context.Context, asset, to common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	k := balanceKey{asset, to}
	cur, ok := v.balances[k]
	if !ok {
		cur = uint256.NewInt(0)
	}
	sum, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return ErrOverflow
	}
	v.balances[k] = sum
	return nil
}

// Approve implements Faucet. It replaces any previous allowance.
func (v *MemoryVault) Approve(_ context.Context, asset, owner, spender common.Address, amount *uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.allowances[allowanceKey{asset, owner, spender}] = amount.Clone()
	return nil
}

// Execute implements Vault. Transfers are applied to a staging copy and only
// committed when every one of them succeeds.
func (v *MemoryVault) Execute(_ context.Context, transfers []Transfer) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	stagedBal := make(map[balanceKey]*uint256.Int)
	stagedAllow := make(map[allowanceKey]*uint256.Int)

	balance := func(k balanceKey) *uint256.Int {
		if b, ok := stagedBal[k]; ok {
			return b
		}
		b := uint256.NewInt(0)
		if cur, ok := v.balances[k]; ok {
			b = cur.Clone()
		}
		stagedBal[k] = b
		return b
	}
	allowance := func(k allowanceKey) *uint256.Int {
		if a, ok := stagedAllow[k]; ok {
			return a
		}
		a := uint256.NewInt(0)
		if cur, ok := v.allowances[k]; ok {
			a = cur.Clone()
		}
		stagedAllow[k] = a
		return a
	}

	for i, t := range transfers {
		if t.Kind == KindPull {
			a := allowance(allowanceKey{t.Asset, t.From, t.Spender})
			if a.Lt(t.Amount) {
				return transferErr(i, t, ErrInsufficientAllowance)
			}
			a.Sub(a, t.Amount)
		}

		from := balance(balanceKey{t.Asset, t.From})
		if from.Lt(t.Amount) {
			return transferErr(i, t, ErrInsufficientBalance)
		}
		from.Sub(from, t.Amount)

		to := balance(balanceKey{t.Asset, t.To})
		if _, overflow := to.AddOverflow(to, t.Amount); overflow {
			return transferErr(i, t, ErrOverflow)
		}
	}

	for k, b := range stagedBal {
		v.balances[k] = b
	}
	for k, a := range stagedAllow {
		v.allowances[k] = a
	}
	return nil
}

var (
	_ Vault  = (*MemoryVault)(nil)
	_ Faucet = (*MemoryVault)(nil)
)
