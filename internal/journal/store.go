package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opolis/payledger/internal/ledger"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

// pageSize bounds each read while replaying history.
const pageSize = 500

// MemoryStore is a ledger.Store over a MemoryVault and a MemoryJournal.
// Payloads are encoded before any funds move, so once the vault batch
// applies the entries are appended unconditionally.
type MemoryStore struct {
	mu       sync.Mutex
	vault    *vault.MemoryVault
	journal  *MemoryJournal
	onAppend func()
}

// NewMemoryStore returns a ledger.Store backed by v and j.
func NewMemoryStore(v *vault.MemoryVault, j *MemoryJournal) *MemoryStore {
	return &MemoryStore{vault: v, journal: j}
}

// SetAppendHook configures a callback run once per appended entry.
func (s *MemoryStore) SetAppendHook(fn func()) {
	s.onAppend = fn
}

// BalanceOf implements ledger.Store.
func (s *MemoryStore) BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	return s.vault.BalanceOf(ctx, asset, holder)
}

// Commit implements ledger.Store.
func (s *MemoryStore) Commit(ctx context.Context, transfers []vault.Transfer, events []ledger.Event) error {
	payloads := make([][]byte, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event %d (%s): %w", i, ev.Kind, err)
		}
		payloads[i] = data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(transfers) > 0 {
		if err := s.vault.Execute(ctx, transfers); err != nil {
			return err
		}
	}

	s.journal.mu.Lock()
	for i, ev := range events {
		s.journal.appendLocked(string(ev.Kind), actorOf(ev), payloads[i])
	}
	s.journal.mu.Unlock()

	s.appended(len(events))
	return nil
}

func (s *MemoryStore) appended(n int) {
	if s.onAppend == nil {
		return
	}
	for i := 0; i < n; i++ {
		s.onAppend()
	}
}

// PostgresStore is a ledger.Store that applies vault transfers and appends
// journal entries in one PostgreSQL transaction.
type PostgresStore struct {
	pool     *pgxpool.Pool
	vault    *vault.PostgresVault
	journal  *PostgresJournal
	onAppend func()
	logger   *zap.Logger
}

// NewPostgresStore returns a ledger.Store over v and j, which must share pool.
func NewPostgresStore(pool *pgxpool.Pool, v *vault.PostgresVault, j *PostgresJournal, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, vault: v, journal: j, logger: logger}
}

// SetAppendHook configures a callback run once per appended entry.
func (s *PostgresStore) SetAppendHook(fn func()) {
	s.onAppend = fn
}

// BalanceOf implements ledger.Store.
func (s *PostgresStore) BalanceOf(ctx context.Context, asset, holder common.Address) (*uint256.Int, error) {
	return s.vault.BalanceOf(ctx, asset, holder)
}

// Commit implements ledger.Store.
func (s *PostgresStore) Commit(ctx context.Context, transfers []vault.Transfer, events []ledger.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.vault.ExecuteTx(ctx, tx, transfers); err != nil {
		return err
	}
	for i, ev := range events {
		if _, err := s.journal.AppendTx(ctx, tx, string(ev.Kind), actorOf(ev), ev); err != nil {
			return fmt.Errorf("journal event %d (%s): %w", i, ev.Kind, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger batch committed",
		zap.Int("transfers", len(transfers)),
		zap.Int("events", len(events)),
	)
	if s.onAppend != nil {
		for range events {
			s.onAppend()
		}
	}
	return nil
}

func actorOf(ev ledger.Event) string {
	if ev.Caller == (common.Address{}) {
		return ""
	}
	return ev.Caller.Hex()
}

// History decodes every non-genesis entry of j back into ledger events,
// in the order they were appended.
func History(ctx context.Context, j Journal) ([]ledger.Event, error) {
	var events []ledger.Event
	for from := 1; ; from += pageSize {
		page, err := j.List(ctx, from, pageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range page {
			var ev ledger.Event
			if err := json.Unmarshal(e.Payload, &ev); err != nil {
				return nil, fmt.Errorf("decode journal entry %d: %w", e.Index, err)
			}
			if string(ev.Kind) != e.Action {
				return nil, fmt.Errorf("journal entry %d: action %q does not match payload kind %q", e.Index, e.Action, ev.Kind)
			}
			events = append(events, ev)
		}
		if len(page) < pageSize {
			return events, nil
		}
	}
}

var (
	_ ledger.Store = (*MemoryStore)(nil)
	_ ledger.Store = (*PostgresStore)(nil)
)
