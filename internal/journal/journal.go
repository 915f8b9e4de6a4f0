// Package journal is the durable, hash-chained record of ledger events.
//
// The chain begins with a genesis entry whose Hash equals GenesisHash. Every
// later entry stores the ledger event it records as JSON, the SHA-256 of that
// payload, and the hash of its predecessor, so tampering is detectable via
// Verify and the ledger can be rebuilt from History.
//
// MemoryJournal serves tests and single-process development; PostgresJournal
// is the durable implementation.
package journal

import "context"

// Journal is an append-only hash chain.
type Journal interface {
	// Append adds a new entry chained to the previous one.
	// payload is JSON-marshalled and stored alongside its SHA-256.
	Append(ctx context.Context, action, actor string, payload any) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// List returns up to limit entries starting at index from, in order.
	List(ctx context.Context, from, limit int) ([]*Entry, error)

	// Len returns the number of entries including genesis.
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry.
	Root(ctx context.Context) (string, error)
}
