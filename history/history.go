// Package history persists accepted transcripts across sessions.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.enteract.dev/enteract/internal/types"
)

// DefaultTTL is how long transcripts are retained.
const DefaultTTL = 7 * 24 * time.Hour

const keyPrefix = "transcript:"

// Store is a badger-backed transcript log. Keys are ordered by timestamp
// so recent entries can be read with a reverse scan, and every entry
// carries a TTL so old transcripts age out without compaction logic.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db, ttl: DefaultTTL}, nil
}

// OpenInMemory opens an ephemeral store, used in tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory history store: %w", err)
	}
	return &Store{db: db, ttl: DefaultTTL}, nil
}

// Append stores a transcript entry. A missing ID or timestamp is filled in.
func (s *Store) Append(entry types.TranscriptEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	key := fmt.Sprintf("%s%020d:%s", keyPrefix, entry.Timestamp, entry.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(s.ttl)
		return txn.SetEntry(e)
	})
}

// Recent returns up to limit transcripts, newest first. limit <= 0 returns
// everything still retained.
func (s *Store) Recent(limit int) ([]types.TranscriptEntry, error) {
	var out []types.TranscriptEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var entry types.TranscriptEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("unmarshal transcript: %w", err)
				}
				out = append(out, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// BySession returns all retained transcripts of one capture session, oldest
// first.
func (s *Store) BySession(sessionID string) ([]types.TranscriptEntry, error) {
	var out []types.TranscriptEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry types.TranscriptEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("unmarshal transcript: %w", err)
				}
				if entry.SessionID == sessionID {
					out = append(out, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
