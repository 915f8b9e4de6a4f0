// Package vault implements the asset-transfer collaborator used by the ledger
// treasury: per-asset balances, owner→spender allowances, and atomic batches
// of transfers.
//
// A batch passed to Execute either applies in full or not at all. Two
// implementations are provided:
//   - MemoryVault: in-process, for testing and single-node development.
//   - PostgresVault: durable, every batch runs inside one transaction.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a transfer would overdraw the sender.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when a pull exceeds what the owner approved.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrOverflow is returned when crediting a balance would exceed 2^256-1.
	ErrOverflow = errors.New("balance overflow")
)

// Kind selects the transfer primitive.
type Kind int

const (
	// KindPush moves funds the sender holds directly ("transfer").
	KindPush Kind = iota
	// KindPull moves funds on behalf of the owner and spends the
	// owner→spender allowance ("transferFrom").
	KindPull
)

func (k Kind) String() string {
	switch k {
	case KindPush:
		return "push"
	case KindPull:
		return "pull"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Transfer is a single movement of one asset.
type Transfer struct {
	Kind    Kind
	Asset   common.Address
	From    common.Address
	To      common.Address
	Spender common.Address // KindPull only
	Amount  *uint256.Int
}

// Vault is the interface satisfied by every vault implementation.
type Vault interface {
	// BalanceOf returns holder's balance of asset. Unknown holders have zero.
	BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error)

	// Execute applies transfers in order as one atomic unit.
	Execute(ctx context.Context, transfers []Transfer) error
}

// Faucet creates funds and allowances out of thin air. Only development
// deployments and tests expose it.
type Faucet interface {
	Mint(ctx context.Context, asset, to common.Address, amount *uint256.Int) error
	Approve(ctx context.Context, asset, owner, spender common.Address, amount *uint256.Int) error
}

func transferErr(i int, t Transfer, err error) error {
	return fmt.Errorf("transfer %d (%s %s %s→%s): %w", i, t.Kind, t.Asset.Hex(), t.From.Hex(), t.To.Hex(), err)
}
