package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	badgerKeyPrefix = "quota:"
	// maxConflictRetries bounds retries of a transaction that lost a race.
	maxConflictRetries = 8
)

// BadgerStore is a CounterStore persisted in BadgerDB, so quota windows survive
// restarts. Windows are written with a TTL and disappear once they expire.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens (or creates) a BadgerDB at path for quota storage.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

// NewBadgerStore creates a BadgerStore on an open database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

var _ CounterStore = (*BadgerStore)(nil)

// Update runs fn in a read-write transaction. Concurrent updates of the same key
// conflict at commit time; the loser is retried against the fresh value.
func (s *BadgerStore) Update(ctx context.Context, key string, fn UpdateFunc) (Window, bool, error) {
	k := []byte(badgerKeyPrefix + key)

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Window{}, false, err
		}

		var (
			result  Window
			allowed bool
		)
		err := s.db.Update(func(txn *badger.Txn) error {
			cur, found, err := readWindow(txn, k)
			if err != nil {
				return err
			}

			next, ok := fn(cur, found)
			allowed = ok
			if !ok {
				result = cur
				return nil
			}

			data, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("marshal window: %w", err)
			}
			entry := badger.NewEntry(k, data)
			if ttl := next.ExpiresAt.Sub(s.now()); ttl > 0 {
				entry = entry.WithTTL(ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return fmt.Errorf("set window: %w", err)
			}
			result = next
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return Window{}, false, err
		}
		return result, allowed, nil
	}

	return Window{}, false, fmt.Errorf("quota update for %q: %w", key, badger.ErrConflict)
}

func readWindow(txn *badger.Txn, key []byte) (Window, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("get window: %w", err)
	}

	var w Window
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &w)
	}); err != nil {
		return Window{}, false, fmt.Errorf("decode window: %w", err)
	}
	return w, true, nil
}
