package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/vault"
)

// StakeKey identifies one stake of a member.
type StakeKey struct {
	MemberID uint64 `json:"member_id"`
	Sequence uint64 `json:"sequence"`
}

// StakeRecord is a funded or settled stake.
type StakeRecord struct {
	Asset     common.Address `json:"asset"`
	Remaining *uint256.Int   `json:"remaining"`
}

// StakeLedger stores stakes by (member, sequence). Sequences start at 1 and
// count every stake a member has made, whatever the asset.
type StakeLedger struct {
	records  map[StakeKey]*StakeRecord
	counters map[uint64]uint64
}

func newStakeLedger() *StakeLedger {
	return &StakeLedger{
		records:  make(map[StakeKey]*StakeRecord),
		counters: make(map[uint64]uint64),
	}
}

func (s *StakeLedger) get(key StakeKey) (StakeRecord, bool) {
	rec, ok := s.records[key]
	if !ok {
		return StakeRecord{}, false
	}
	return StakeRecord{Asset: rec.Asset, Remaining: rec.Remaining.Clone()}, true
}

// SubmitStake records a stake for memberID and returns its sequence number.
//
// For a whitelisted asset the amount is pulled from caller into custody. For
// NativeAsset the call must carry value equal to amount; that value is
// forwarded straight to the destination. Non-native stakes must carry no value.
func (l *Ledger) SubmitStake(ctx context.Context, caller, asset common.Address, amount *uint256.Int, memberID uint64, value *uint256.Int) (uint64, error) {
	if memberID == 0 {
		return 0, ErrNotMember
	}
	if amount == nil || amount.IsZero() {
		return 0, ErrInvalidStake
	}
	if value == nil {
		value = new(uint256.Int)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var transfer vault.Transfer
	switch {
	case asset == NativeAsset:
		if !value.Eq(amount) {
			return 0, ErrInvalidStake
		}
		transfer = l.treasury.forwardNative(caller, l.access.destination, amount)
	case l.registry.isListed(asset):
		if !value.IsZero() {
			return 0, ErrInvalidStake
		}
		transfer = l.treasury.pull(asset, caller, amount)
	default:
		return 0, ErrInvalidStake
	}

	seq := l.stakes.counters[memberID] + 1
	if err := l.commit(ctx, []vault.Transfer{transfer}, Event{
		Kind:     EventStaked,
		Caller:   caller,
		Asset:    asset,
		Amount:   amount.Clone(),
		MemberID: memberID,
		Sequence: seq,
	}); err != nil {
		return 0, fmt.Errorf("collect stake funds: %w", err)
	}
	return seq, nil
}

// WithdrawStakes forwards the remaining balance of each (id, sequence) stake
// to the destination and settles it. Admin only, all-or-nothing, idempotent
// in the same way as WithdrawPayrolls.
//
// Native stakes reached the destination when they were submitted, so
// withdrawing one settles the record without moving funds.
func (l *Ledger) WithdrawStakes(ctx context.Context, caller common.Address, ids, sequences []uint64, assets []common.Address, amounts []*uint256.Int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.RequireAdmin(caller); err != nil {
		return nil, err
	}
	if len(ids) != len(sequences) || len(ids) != len(assets) || len(ids) != len(amounts) {
		return nil, ErrInvalidWithdraw
	}

	events := make([]Event, 0, len(ids))
	settled := make(map[StakeKey]bool, len(ids))
	for i := range ids {
		key := StakeKey{MemberID: ids[i], Sequence: sequences[i]}
		if !l.registry.IsWhitelisted(assets[i]) {
			return nil, &EntryError{Index: i, Err: ErrInvalidToken}
		}
		rec, ok := l.stakes.records[key]
		if !ok || rec.Asset != assets[i] {
			return nil, &EntryError{Index: i, Err: ErrInvalidPayroll}
		}

		amt := rec.Remaining.Clone()
		if settled[key] {
			amt.Clear()
		}
		settled[key] = true

		events = append(events, Event{
			Kind:     EventOpsStakeWithdraw,
			Asset:    rec.Asset,
			MemberID: key.MemberID,
			Sequence: key.Sequence,
			Amount:   amt,
		})
	}

	if err := l.commit(ctx, l.pushes(events), events...); err != nil {
		return nil, fmt.Errorf("forward stake funds: %w", err)
	}
	return events, nil
}
