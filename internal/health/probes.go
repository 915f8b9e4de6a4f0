package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInsolvent means custody holds less of an asset than the ledger owes.
var ErrInsolvent = errors.New("custody balance below outstanding records")

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Verifier is satisfied by every journal.Journal.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Books is satisfied by *ledger.Ledger.
type Books interface {
	Outstanding() map[common.Address]*uint256.Int
	CustodyBalance(ctx context.Context, asset common.Address) (*uint256.Int, error)
}

// PingProbe checks database connectivity.
func PingProbe(name string, p Pinger) Probe {
	return Probe{Name: name, Check: p.Ping}
}

// JournalProbe re-verifies the journal hash chain.
func JournalProbe(v Verifier) Probe {
	return Probe{Name: "journal", Check: v.Verify}
}

// SolvencyProbe checks that custody covers every unsettled record. It fails
// after a ClearBalance sweep that took funds still owed to records.
func SolvencyProbe(b Books) Probe {
	return Probe{Name: "solvency", Check: func(ctx context.Context) error {
		for asset, owed := range b.Outstanding() {
			held, err := b.CustodyBalance(ctx, asset)
			if err != nil {
				return fmt.Errorf("custody balance of %s: %w", asset.Hex(), err)
			}
			if held.Lt(owed) {
				return fmt.Errorf("%w: %s holds %s, owes %s", ErrInsolvent, asset.Hex(), held.Dec(), owed.Dec())
			}
		}
		return nil
	}}
}
