package raft

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/buntdb"
)

// Store persists the node's durable raft state: current term, the vote
// cast this term, the log entries, and the snapshot boundary. A node
// restarted after a crash reloads all of it before rejoining the
// cluster, so an acknowledged entry or vote is never forgotten.
//
// Keys are printf-style strings in a buntdb file; log entries are
// JSON values under zero-padded index keys so lexical order is index
// order.
type Store struct {
	db *buntdb.DB
}

const (
	keyTerm          = "state.term"
	keyVotedFor      = "state.votedfor"
	keySnapshotIndex = "snapshot.index"
	keySnapshotTerm  = "snapshot.term"
	logKeyFormat     = "log.%020d"
)

// OpenStore opens (or creates) the persistent store at path. Use
// ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raft: open store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SetState durably records the current term and vote. This must
// complete before the node answers the RPC that changed them.
func (s *Store) SetState(term uint64, votedFor string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(keyTerm, strconv.FormatUint(term, 10), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(keyVotedFor, votedFor, nil)
		return err
	})
}

// State returns the persisted term and vote, zero-valued on first
// boot.
func (s *Store) State() (term uint64, votedFor string, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		if v, err := tx.Get(keyTerm); err == nil {
			term, _ = strconv.ParseUint(v, 10, 64)
		}
		if v, err := tx.Get(keyVotedFor); err == nil {
			votedFor = v
		}
		return nil
	})
	return term, votedFor, err
}

// AppendEntries persists new log entries.
func (s *Store) AppendEntries(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		for _, e := range entries {
			val, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(fmt.Sprintf(logKeyFormat, e.Index), string(val), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// TruncateFrom removes persisted entries at and above index, after a
// divergence was resolved in the leader's favor.
func (s *Store) TruncateFrom(index uint64) error {
	return s.deleteRange(index, ^uint64(0))
}

// CompactTo removes persisted entries at and below index and records
// the new snapshot boundary.
func (s *Store) CompactTo(index, term uint64) error {
	if err := s.deleteRange(0, index); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, _, err := tx.Set(keySnapshotIndex, strconv.FormatUint(index, 10), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(keySnapshotTerm, strconv.FormatUint(term, 10), nil)
		return err
	})
}

func (s *Store) deleteRange(lo, hi uint64) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		var doomed []string
		err := tx.AscendRange("", fmt.Sprintf(logKeyFormat, lo), fmt.Sprintf(logKeyFormat, hi), func(key, _ string) bool {
			doomed = append(doomed, key)
			return true
		})
		if err != nil {
			return err
		}
		if hi != ^uint64(0) {
			if _, err := tx.Get(fmt.Sprintf(logKeyFormat, hi)); err == nil {
				doomed = append(doomed, fmt.Sprintf(logKeyFormat, hi))
			}
		}
		for _, key := range doomed {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// SnapshotBoundary returns the persisted snapshot index and term.
func (s *Store) SnapshotBoundary() (index, term uint64, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		if v, err := tx.Get(keySnapshotIndex); err == nil {
			index, _ = strconv.ParseUint(v, 10, 64)
		}
		if v, err := tx.Get(keySnapshotTerm); err == nil {
			term, _ = strconv.ParseUint(v, 10, 64)
		}
		return nil
	})
	return index, term, err
}

// Entries loads every persisted log entry in index order.
func (s *Store) Entries() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendRange("", fmt.Sprintf(logKeyFormat, 0), fmt.Sprintf(logKeyFormat, ^uint64(0)), func(_, value string) bool {
			var e Entry
			if err := json.Unmarshal([]byte(value), &e); err == nil {
				out = append(out, e)
			}
			return true
		})
	})
	return out, err
}
