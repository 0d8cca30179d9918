// Package store persists wallets, analysis jobs, api requests, reports and
// labels in a local leveldb. All queue claims are single find-and-modify
// operations under the store mutex, so a claimed record is owned by exactly
// one caller.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Errors returned by the store.
var (
	ErrNotFound     = errors.New("record not found")
	ErrWalletExists = errors.New("wallet already registered")
	ErrTokenExpired = errors.New("link token expired or used")
)

// Key prefixes. Time-ordered indexes encode timestamps as zero-padded
// nanosecond strings so lexicographic iteration is chronological.
const (
	prefixWallet       = "w/"
	prefixWalletIndex  = "wi/"
	prefixJob          = "j/"
	prefixJobPending   = "jp/"
	prefixJobActive    = "jx/"
	prefixRequest      = "q/"
	prefixReqPending   = "qp/"
	prefixReqActive    = "qx/"
	prefixReqCompleted = "qc/"
	prefixReport       = "r/"
	prefixContract     = "c/"
	prefixGuest        = "g/"
	prefixLabel        = "l/"
	prefixLinkToken    = "t/"
	prefixChatBinding  = "tc/"
)

// Store wraps the leveldb handle. The mutex serializes every multi-key
// mutation; reads of single records go straight to the db.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) the store at the given directory.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store, used by tests.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func tsKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func (s *Store) putJSON(batch *leveldb.Batch, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if batch != nil {
		batch.Put([]byte(key), raw)
		return nil
	}
	return s.db.Put([]byte(key), raw, nil)
}

func (s *Store) getJSON(key string, v any) error {
	raw, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func jsonUnmarshal(raw []byte, v any) error {
	return json.Unmarshal(raw, v)
}

func (s *Store) has(key string) bool {
	ok, _ := s.db.Has([]byte(key), nil)
	return ok
}
