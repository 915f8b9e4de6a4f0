package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent Append calls across processes.
const advisoryLockKey = int64(1_159_876_543)

const selectColumns = `SELECT idx, timestamp, action, actor, payload, data_hash, prev_hash, hash FROM ledger_journal`

// PostgresJournal persists the journal to PostgreSQL. The genesis row is
// created by the 001 migration.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresJournal backed by the given connection pool.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *PostgresJournal {
	return &PostgresJournal{pool: pool, logger: logger}
}

// Append implements Journal.
func (j *PostgresJournal) Append(ctx context.Context, action, actor string, payload any) (*Entry, error) {
	tx, err := j.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	entry, err := j.AppendTx(ctx, tx, action, actor, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit journal tx: %w", err)
	}
	return entry, nil
}

// AppendTx appends inside tx, which the caller commits. It takes a
// transaction-scoped advisory lock, reads the chain tail, and inserts the
// new entry.
func (j *PostgresJournal) AppendTx(ctx context.Context, tx pgx.Tx, action, actor string, payload any) (*Entry, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM ledger_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read journal tail: %w", err)
	}

	// timestamptz keeps microseconds; the hash must survive a round trip.
	entry := &Entry{
		Index:     prevIdx + 1,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		Action:    action,
		Actor:     actor,
		Payload:   payloadJSON,
		DataHash:  sha256Sum(payloadJSON),
		PrevHash:  prevHash,
	}
	entry.Hash = hashEntry(entry)

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_journal (idx, timestamp, action, actor, payload, data_hash, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Index, entry.Timestamp, entry.Action, entry.Actor,
		string(entry.Payload), entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert journal entry: %w", err)
	}

	j.logger.Debug("journal entry appended",
		zap.Int("idx", entry.Index),
		zap.String("action", entry.Action),
		zap.String("actor", entry.Actor),
	)
	return entry, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var payload []byte
	if err := row.Scan(
		&e.Index, &e.Timestamp, &e.Action, &e.Actor,
		&payload, &e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	if len(payload) > 0 {
		e.Payload = payload
	}
	return e, nil
}

// Get implements Journal.
func (j *PostgresJournal) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(j.pool.QueryRow(ctx, selectColumns+` WHERE idx = $1`, index))
	if err != nil {
		return nil, fmt.Errorf("get journal entry %d: %w", index, err)
	}
	return e, nil
}

// List implements Journal.
func (j *PostgresJournal) List(ctx context.Context, from, limit int) ([]*Entry, error) {
	if from < 0 {
		from = 0
	}
	if limit <= 0 {
		return []*Entry{}, nil
	}
	rows, err := j.pool.Query(ctx,
		selectColumns+` WHERE idx >= $1 ORDER BY idx ASC LIMIT $2`, from, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	out := []*Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Len implements Journal.
func (j *PostgresJournal) Len(ctx context.Context) (int, error) {
	var n int
	if err := j.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_journal").Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal entries: %w", err)
	}
	return n, nil
}

// Verify implements Journal. It streams every row in order; O(n) in journal length.
func (j *PostgresJournal) Verify(ctx context.Context) error {
	rows, err := j.pool.Query(ctx, selectColumns+` ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan journal row: %w", err)
		}
		if err := verifyChain(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Root implements Journal.
func (j *PostgresJournal) Root(ctx context.Context) (string, error) {
	var hash string
	if err := j.pool.QueryRow(ctx,
		"SELECT hash FROM ledger_journal ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get journal root: %w", err)
	}
	return hash, nil
}
