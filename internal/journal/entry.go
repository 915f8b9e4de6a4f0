package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisHash is the hash of the genesis entry. Every chain starts from it.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ActionGenesis is the action recorded on entry 0.
const ActionGenesis = "genesis"

// Entry is a single record in the journal.
type Entry struct {
	Index     int             `json:"index"`
	Timestamp time.Time       `json:"timestamp"`
	Action    string          `json:"action"` // ledger event kind, or "genesis"
	Actor     string          `json:"actor"`  // caller address, empty for admin-less events
	Payload   json.RawMessage `json:"payload,omitempty"`
	DataHash  string          `json:"data_hash"` // SHA-256 of Payload
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

// hashEntry computes a deterministic SHA-256 hash over an entry's fields.
// Never called on the genesis entry.
func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s",
		e.Index, e.Timestamp.Format(time.RFC3339Nano),
		e.Action, e.Actor, e.DataHash, e.PrevHash,
	)
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func genesisEntry() *Entry {
	return &Entry{
		Index:     0,
		Timestamp: time.Now().UTC(),
		Action:    ActionGenesis,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash,
	}
}

// verifyChain checks one link. prev is nil for the genesis entry.
func verifyChain(prev, curr *Entry) error {
	if prev == nil {
		if curr.Hash != GenesisHash {
			return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
		}
		return nil
	}
	if curr.PrevHash != prev.Hash {
		return fmt.Errorf("hash chain broken at index %d", curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return fmt.Errorf("entry %d has invalid hash", curr.Index)
	}
	return nil
}
