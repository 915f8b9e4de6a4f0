package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/vault"
)

// Store is the ledger's durable backing. Commit applies transfers and records
// the events describing them as one atomic unit: either both persist or
// neither does. Restore rebuilds a Ledger from the recorded events, so an
// event must never be lost once its transfers are durable.
type Store interface {
	BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error)
	Commit(ctx context.Context, transfers []vault.Transfer, events []Event) error
}

// Treasury moves funds between callers, the ledger's custody account, and
// the destination. It holds no state of its own.
type Treasury struct {
	store   Store
	custody common.Address
}

// pull draws amount of asset from owner into custody; owner must have
// approved custody as spender beforehand.
func (t *Treasury) pull(asset, owner common.Address, amount *uint256.Int) vault.Transfer {
	return vault.Transfer{
		Kind:    vault.KindPull,
		Asset:   asset,
		From:    owner,
		To:      t.custody,
		Spender: t.custody,
		Amount:  amount.Clone(),
	}
}

// push sends amount of asset from custody to recipient.
func (t *Treasury) push(asset, recipient common.Address, amount *uint256.Int) vault.Transfer {
	return vault.Transfer{
		Kind:   vault.KindPush,
		Asset:  asset,
		From:   t.custody,
		To:     recipient,
		Amount: amount.Clone(),
	}
}

// forwardNative passes native value attached to a call straight on to
// recipient; it never rests in custody.
func (t *Treasury) forwardNative(sender, recipient common.Address, amount *uint256.Int) vault.Transfer {
	return vault.Transfer{
		Kind:   vault.KindPush,
		Asset:  NativeAsset,
		From:   sender,
		To:     recipient,
		Amount: amount.Clone(),
	}
}

func (t *Treasury) balance(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	return t.store.BalanceOf(ctx, asset, t.custody)
}

// execute commits the non-zero transfers together with events.
func (t *Treasury) execute(ctx context.Context, transfers []vault.Transfer, events []Event) error {
	batch := transfers[:0:0]
	for _, tr := range transfers {
		if !tr.Amount.IsZero() {
			batch = append(batch, tr)
		}
	}
	return t.store.Commit(ctx, batch, events)
}

// pushes builds the custody→destination transfers for withdrawal events.
// Native amounts are skipped: native value is never held in custody.
func (l *Ledger) pushes(events []Event) []vault.Transfer {
	out := make([]vault.Transfer, 0, len(events))
	for _, ev := range events {
		if ev.Asset == NativeAsset || ev.Amount == nil || ev.Amount.IsZero() {
			continue
		}
		out = append(out, l.treasury.push(ev.Asset, l.access.destination, ev.Amount))
	}
	return out
}

// ReceiveNative rejects native value sent to the ledger outside a stake
// submission. The ledger has no payable fallback.
func (l *Ledger) ReceiveNative(_ context.Context, _ common.Address, _ *uint256.Int) error {
	return ErrDirectTransfer
}
