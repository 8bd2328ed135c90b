// Package ledger remembers which plugin months were already submitted.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/expensify-os/internal/db"
	"github.com/kailas-cloud/expensify-os/internal/domain"
)

// store is the consumer interface for ledger operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Store keeps one JSON entry per plugin and month.
type Store struct {
	store  store
	prefix string
	ttl    time.Duration
}

// New creates a ledger store. Keys are <prefix>ledger:<plugin>:<YYYY-MM>.
func New(s store, prefix string, ttl time.Duration) *Store {
	return &Store{store: s, prefix: prefix, ttl: ttl}
}

// Key returns the storage key for a plugin month.
func (s *Store) Key(plugin string, month domain.Month) string {
	return fmt.Sprintf("%sledger:%s:%s", s.prefix, plugin, month)
}

// Lookup returns the entry for a plugin month. found is false when none exists.
func (s *Store) Lookup(ctx context.Context, plugin string, month domain.Month) (domain.LedgerEntry, bool, error) {
	key := s.Key(plugin, month)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.LedgerEntry{}, false, nil
		}
		return domain.LedgerEntry{}, false, fmt.Errorf("ledger GET %s: %w", key, err)
	}

	var entry domain.LedgerEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("ledger GET %s decode: %w", key, err)
	}
	return entry, true, nil
}

// Record stores the entry, replacing any previous one.
func (s *Store) Record(ctx context.Context, entry domain.LedgerEntry) error {
	month, err := domain.ParseMonth(entry.Month)
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	key := s.Key(entry.Plugin, month)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger SET %s encode: %w", key, err)
	}
	if err := s.store.SetWithTTL(ctx, key, data, s.ttl); err != nil {
		return fmt.Errorf("ledger SET %s: %w", key, err)
	}
	return nil
}

// Forget removes the entry so the month can be submitted again.
func (s *Store) Forget(ctx context.Context, plugin string, month domain.Month) error {
	key := s.Key(plugin, month)
	if err := s.store.Del(ctx, key); err != nil {
		return fmt.Errorf("ledger DEL %s: %w", key, err)
	}
	return nil
}
