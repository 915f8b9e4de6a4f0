package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

// PayrollRecord is a funded (Remaining > 0) or settled (Remaining == 0) payroll.
type PayrollRecord struct {
	Asset     common.Address `json:"asset"`
	Remaining *uint256.Int   `json:"remaining"`
}

// PayrollLedger stores payroll records by caller-supplied id. Ids share one
// namespace across all assets and are create-only.
type PayrollLedger struct {
	records map[uint64]*PayrollRecord
}

func newPayrollLedger() *PayrollLedger {
	return &PayrollLedger{records: make(map[uint64]*PayrollRecord)}
}

func (p *PayrollLedger) get(id uint64) (PayrollRecord, bool) {
	rec, ok := p.records[id]
	if !ok {
		return PayrollRecord{}, false
	}
	return PayrollRecord{Asset: rec.Asset, Remaining: rec.Remaining.Clone()}, true
}

// SubmitPayroll pulls amount of asset from caller into custody and records it
// under payrollID.
func (l *Ledger) SubmitPayroll(ctx context.Context, caller, asset common.Address, amount *uint256.Int, payrollID uint64) error {
	if amount == nil || amount.IsZero() || payrollID == 0 {
		return ErrInvalidPayroll
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if asset == NativeAsset || !l.registry.isListed(asset) {
		return ErrNotWhitelisted
	}
	if _, exists := l.payrolls.records[payrollID]; exists {
		return ErrDuplicatePayroll
	}

	ev := Event{
		Kind:      EventPaid,
		Caller:    caller,
		Asset:     asset,
		PayrollID: payrollID,
		Amount:    amount.Clone(),
	}
	if err := l.commit(ctx, []vault.Transfer{l.treasury.pull(asset, caller, amount)}, ev); err != nil {
		return fmt.Errorf("pull payroll funds: %w", err)
	}
	return nil
}

// WithdrawPayrolls forwards the remaining balance of every listed payroll to
// the destination and settles it. Admin only. The batch is all-or-nothing:
// every entry is validated before any funds move.
//
// amounts is informational; the transferred quantity is always the record's
// remaining balance, so repeating a withdrawal moves nothing and succeeds.
func (l *Ledger) WithdrawPayrolls(ctx context.Context, caller common.Address, ids []uint64, assets []common.Address, amounts []*uint256.Int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if len(ids) != len(assets) || len(ids) != len(amounts) {
		return nil, ErrInvalidWithdraw
	}

	events := make([]Event, 0, len(ids))
	settled := make(map[uint64]bool, len(ids))
	for i, id := range ids {
		if !l.registry.IsWhitelisted(assets[i]) {
			return nil, &EntryError{Index: i, Err: ErrInvalidToken}
		}
		rec, ok := l.payrolls.records[id]
		if !ok || rec.Asset != assets[i] {
			return nil, &EntryError{Index: i, Err: ErrInvalidPayroll}
		}

		amt := rec.Remaining.Clone()
		if settled[id] {
			amt.Clear()
		}
		settled[id] = true

		if amounts[i] != nil && !amounts[i].Eq(amt) {
			l.logger.Debug("payroll withdraw amount differs from record",
				zap.Uint64("payroll_id", id),
				zap.Stringer("requested", amounts[i]),
				zap.Stringer("recorded", amt),
			)
		}
		events = append(events, Event{
			Kind:      EventOpsPayrollWithdraw,
			Asset:     rec.Asset,
			PayrollID: id,
			Amount:    amt,
		})
	}

	if err := l.commit(ctx, l.pushes(events), events...); err != nil {
		return nil, fmt.Errorf("forward payroll funds: %w", err)
	}
	return events, nil
}

// ClearBalance sweeps the whole custody balance of the primary asset to the
// destination. It ignores per-record bookkeeping: funds still owed to
// unwithdrawn payrolls or stakes are swept too. Admin only.
func (l *Ledger) ClearBalance(ctx context.Context, caller common.Address) (*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.RequireAdmin(caller); err != nil {
		return nil, err
	}

	asset, ok := l.registry.primary()
	if !ok {
		return nil, nil
	}
	bal, err := l.treasury.balance(ctx, asset)
	if err != nil {
		return nil, fmt.Errorf("read custody balance: %w", err)
	}

	ev := Event{Kind: EventBalanceCleared, Asset: asset, Amount: bal}
	if err := l.commit(ctx, l.pushes([]Event{ev}), ev); err != nil {
		return nil, fmt.Errorf("sweep custody balance: %w", err)
	}
	return &ev, nil
}
