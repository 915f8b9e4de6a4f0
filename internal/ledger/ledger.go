// Package ledger implements the payroll and stake custody ledger.
//
// Members submit payrolls (keyed by a caller-chosen id) and stakes (keyed by
// member id and a per-member sequence number) in whitelisted assets; the
// funds are pulled into the ledger's custody account. The admin later
// withdraws recorded funds to a fixed destination in batches. Withdrawal is
// idempotent: the amount moved is always the record's remaining balance, so a
// retried batch moves nothing and still succeeds.
//
// Every mutating operation runs under a single writer lock and validates all
// of its input before touching state. A rejected operation leaves no trace.
// Each operation's transfers and events are committed to the Store together;
// Restore rebuilds a Ledger from the recorded history. Committed events are
// then published to the configured EventSinks.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

// Config is the initial configuration of a Ledger.
type Config struct {
	Destination common.Address
	Admin       common.Address
	Helper      common.Address
	// Custody is the vault account that holds funds between submission and
	// withdrawal.
	Custody common.Address
	Assets  []common.Address
}

// Snapshot is the current configuration as seen by readers.
type Snapshot struct {
	Destination common.Address   `json:"destination"`
	Admin       common.Address   `json:"admin"`
	Helper      common.Address   `json:"helper"`
	Custody     common.Address   `json:"custody"`
	Assets      []common.Address `json:"assets"`
}

// Ledger owns the registry, access controller, payroll and stake ledgers,
// and the treasury. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	access   *AccessController
	registry *AssetRegistry
	payrolls *PayrollLedger
	stakes   *StakeLedger
	treasury *Treasury
	sinks    []EventSink
	logger   *zap.Logger
}

func newLedger(custody common.Address, s Store, logger *zap.Logger, sinks []EventSink) *Ledger {
	return &Ledger{
		access:   &AccessController{},
		registry: newAssetRegistry(nil),
		payrolls: newPayrollLedger(),
		stakes:   newStakeLedger(),
		treasury: &Treasury{store: s, custody: custody},
		sinks:    sinks,
		logger:   logger,
	}
}

// New creates a Ledger from cfg and records SetupComplete.
func New(ctx context.Context, cfg Config, s Store, logger *zap.Logger, sinks ...EventSink) (*Ledger, error) {
	if err := requireNonZero(cfg.Destination, cfg.Admin, cfg.Helper, cfg.Custody); err != nil {
		return nil, err
	}

	l := newLedger(cfg.Custody, s, logger, sinks)
	assets := make([]common.Address, len(cfg.Assets))
	copy(assets, cfg.Assets)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.commit(ctx, nil, Event{
		Kind:        EventSetupComplete,
		Destination: cfg.Destination,
		Admin:       cfg.Admin,
		Helper:      cfg.Helper,
		Assets:      assets,
	}); err != nil {
		return nil, fmt.Errorf("record setup: %w", err)
	}
	return l, nil
}

// Restore rebuilds a Ledger by re-applying history, which must start with
// SetupComplete. No funds move and no events are re-recorded or re-emitted.
func Restore(custody common.Address, s Store, logger *zap.Logger, history []Event, sinks ...EventSink) (*Ledger, error) {
	if err := requireNonZero(custody); err != nil {
		return nil, err
	}
	if len(history) == 0 || history[0].Kind != EventSetupComplete {
		return nil, fmt.Errorf("restore: history must start with %s", EventSetupComplete)
	}

	l := newLedger(custody, s, logger, sinks)
	for i, ev := range history {
		if err := l.apply(ev); err != nil {
			return nil, fmt.Errorf("restore event %d (%s): %w", i, ev.Kind, err)
		}
	}
	logger.Info("ledger restored",
		zap.Int("events", len(history)),
		zap.Int("payrolls", len(l.payrolls.records)),
		zap.Int("stakes", len(l.stakes.records)),
	)
	return l, nil
}

// commit durably moves transfers and records events in one Store commit, then
// applies the events to state and publishes them. Callers hold l.mu and have
// already validated everything. On error nothing has changed.
func (l *Ledger) commit(ctx context.Context, transfers []vault.Transfer, events ...Event) error {
	if err := l.treasury.execute(ctx, transfers, events); err != nil {
		return err
	}
	for _, ev := range events {
		if err := l.apply(ev); err != nil {
			// Events built by this package always apply.
			panic(fmt.Sprintf("ledger: apply %s: %v", ev.Kind, err))
		}
		l.logger.Info("ledger event",
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("payroll_id", ev.PayrollID),
			zap.Uint64("member_id", ev.MemberID),
			zap.Uint64("sequence", ev.Sequence),
			zap.Stringer("asset", ev.Asset),
		)
		for _, sink := range l.sinks {
			if err := sink.Publish(ctx, ev); err != nil {
				l.logger.Error("event publish failed (non-fatal)",
					zap.String("kind", string(ev.Kind)),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// apply is the single state transition function shared by live operations
// and Restore.
func (l *Ledger) apply(ev Event) error {
	switch ev.Kind {
	case EventSetupComplete:
		l.access.destination = ev.Destination
		l.access.admin = ev.Admin
		l.access.helper = ev.Helper
		l.registry = newAssetRegistry(ev.Assets)

	case EventPaid:
		if _, exists := l.payrolls.records[ev.PayrollID]; exists {
			return ErrDuplicatePayroll
		}
		l.payrolls.records[ev.PayrollID] = &PayrollRecord{Asset: ev.Asset, Remaining: amountOf(ev)}

	case EventStaked:
		key := StakeKey{MemberID: ev.MemberID, Sequence: ev.Sequence}
		if ev.Sequence != l.stakes.counters[ev.MemberID]+1 {
			return fmt.Errorf("stake sequence %d out of order for member %d", ev.Sequence, ev.MemberID)
		}
		l.stakes.counters[ev.MemberID] = ev.Sequence
		l.stakes.records[key] = &StakeRecord{Asset: ev.Asset, Remaining: amountOf(ev)}

	case EventOpsPayrollWithdraw:
		rec, ok := l.payrolls.records[ev.PayrollID]
		if !ok {
			return ErrInvalidPayroll
		}
		rec.Remaining.Clear()

	case EventOpsStakeWithdraw:
		rec, ok := l.stakes.records[StakeKey{MemberID: ev.MemberID, Sequence: ev.Sequence}]
		if !ok {
			return ErrInvalidPayroll
		}
		rec.Remaining.Clear()

	case EventNewAdmin, EventNewHelper, EventNewDestination:
		*l.access.roleField(ev.Kind) = ev.New

	case EventNewTokens:
		l.registry.add(ev.Assets)

	case EventBalanceCleared:
		// Custody only; no bookkeeping changes.

	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return nil
}

func amountOf(ev Event) *uint256.Int {
	if ev.Amount == nil {
		return new(uint256.Int)
	}
	return ev.Amount.Clone()
}

// AddAssets whitelists assets. Admin only. Already listed assets and the
// native sentinel are accepted and ignored; the event lists the input as given.
func (l *Ledger) AddAssets(ctx context.Context, caller common.Address, assets []common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.RequireAdmin(caller); err != nil {
		return err
	}
	added := make([]common.Address, len(assets))
	copy(added, assets)
	return l.commit(ctx, nil, Event{Kind: EventNewTokens, Assets: added})
}

// UpdateAdmin replaces the admin. Admin only.
func (l *Ledger) UpdateAdmin(ctx context.Context, caller, admin common.Address) error {
	return l.updateRole(ctx, caller, EventNewAdmin, admin)
}

// UpdateHelper replaces the helper. Admin only.
func (l *Ledger) UpdateHelper(ctx context.Context, caller, helper common.Address) error {
	return l.updateRole(ctx, caller, EventNewHelper, helper)
}

// UpdateDestination replaces the withdrawal destination. Admin only.
func (l *Ledger) UpdateDestination(ctx context.Context, caller, destination common.Address) error {
	return l.updateRole(ctx, caller, EventNewDestination, destination)
}

func (l *Ledger) updateRole(ctx context.Context, caller common.Address, kind EventKind, addr common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.access.RequireAdmin(caller); err != nil {
		return err
	}
	if err := requireNonZero(addr); err != nil {
		return err
	}
	return l.commit(ctx, nil, Event{Kind: kind, Old: *l.access.roleField(kind), New: addr})
}

// Payroll returns a copy of the payroll record for id.
func (l *Ledger) Payroll(id uint64) (PayrollRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payrolls.get(id)
}

// Stake returns a copy of the stake record for (memberID, sequence).
func (l *Ledger) Stake(memberID, sequence uint64) (StakeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes.get(StakeKey{MemberID: memberID, Sequence: sequence})
}

// StakeCount returns how many stakes memberID has submitted.
func (l *Ledger) StakeCount(memberID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes.counters[memberID]
}

// IsWhitelisted reports whether asset is currently acceptable.
func (l *Ledger) IsWhitelisted(asset common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry.IsWhitelisted(asset)
}

// Config returns the current configuration.
func (l *Ledger) Config() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Destination: l.access.Destination(),
		Admin:       l.access.Admin(),
		Helper:      l.access.Helper(),
		Custody:     l.treasury.custody,
		Assets:      l.registry.Assets(),
	}
}

// CustodyBalance returns how much of asset the ledger currently holds.
func (l *Ledger) CustodyBalance(ctx context.Context, asset common.Address) (*uint256.Int, error) {
	return l.treasury.balance(ctx, asset)
}

// Outstanding sums the remaining balance of every unsettled payroll and
// stake per asset. Native stakes are excluded; their value never rests in
// custody. Sums saturate at the uint256 maximum.
func (l *Ledger) Outstanding() map[common.Address]*uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[common.Address]*uint256.Int)
	add := func(asset common.Address, amount *uint256.Int) {
		if asset == NativeAsset || amount.IsZero() {
			return
		}
		sum, ok := out[asset]
		if !ok {
			sum = new(uint256.Int)
			out[asset] = sum
		}
		if _, overflow := sum.AddOverflow(sum, amount); overflow {
			sum.SetAllOne()
		}
	}
	for _, rec := range l.payrolls.records {
		add(rec.Asset, rec.Remaining)
	}
	for _, rec := range l.stakes.records {
		add(rec.Asset, rec.Remaining)
	}
	return out
}
