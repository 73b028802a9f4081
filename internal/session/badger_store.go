package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore implements core.SessionStore on a local Badger database. Keys
// are namespaced by session id, so one database serves many sessions.
type BadgerStore struct {
	db        *badger.DB
	sessionID string
	ttl       time.Duration
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string
	// SessionID identifies the session. A new one is generated when empty.
	SessionID string
	// TTL expires stored values. Zero keeps them until removed.
	TTL time.Duration
	// InMemory keeps the database in memory only.
	InMemory bool
}

// NewBadgerStore opens (or creates) the database and binds to the session.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database '%s': %w", opts.Dir, err)
	}

	return &BadgerStore{db: db, sessionID: sessionID, ttl: opts.TTL}, nil
}

// SessionID returns the id of the session backing this store.
func (b *BadgerStore) SessionID() string {
	return b.sessionID
}

// Get retrieves a value of the session.
func (b *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("failed to get '%s': %w", key, err)
	}

	return string(value), true, nil
}

// Set stores a value, replacing any previous one.
func (b *BadgerStore) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(b.key(key), []byte(value))
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}

		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to set '%s': %w", key, err)
	}

	return nil
}

// Remove deletes a value. Removing a missing key is not an error.
func (b *BadgerStore) Remove(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete '%s': %w", key, err)
	}

	return nil
}

// Close releases the database.
func (b *BadgerStore) Close() error {
	err := b.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close session database: %w", err)
	}

	return nil
}

func (b *BadgerStore) key(key string) []byte {
	return []byte(b.sessionID + "/" + key)
}
