package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NatsStore implements core.SessionStore on a NATS JetStream object store
// bucket. Each browsing session gets its own bucket, so state outlives the
// process that wrote it until the session is ended or the TTL expires.
type NatsStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	sessionID        string
	store            nats.ObjectStore
}

// NatsOptions configures a NatsStore.
type NatsOptions struct {
	// BucketPrefix is joined with the session id to form the bucket name.
	BucketPrefix string
	// SessionID identifies the session. A new one is generated when empty.
	SessionID string
	// TTL expires stored values. Zero keeps them until End is called.
	TTL time.Duration
	// InMemory selects memory storage instead of file storage.
	InMemory bool
}

// NewNatsStore binds to the session bucket, creating it when it does not exist yet.
func NewNatsStore(jetstreamContext nats.JetStreamContext, opts NatsOptions) (*NatsStore, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	bucketName := BucketName(opts.BucketPrefix, sessionID)

	store, err := jetstreamContext.ObjectStore(bucketName)
	if err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("failed to bind to session bucket '%s': %w", bucketName, err)
		}

		storage := nats.FileStorage
		if opts.InMemory {
			storage = nats.MemoryStorage
		}

		store, err = jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucketName,
			Description: fmt.Sprintf("Session state for %s.", sessionID),
			TTL:         opts.TTL,
			MaxBytes:    0,
			Storage:     storage,
			Replicas:    1,
			Placement:   nil,
			Metadata:    nil,
			Compression: false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create session bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		sessionID:        sessionID,
		store:            store,
	}, nil
}

// BucketName returns the object store bucket used for a session.
func BucketName(prefix, sessionID string) string {
	if prefix == "" {
		return sessionID
	}

	return prefix + "_" + sessionID
}

// SessionID returns the id of the session backing this store.
func (n *NatsStore) SessionID() string {
	return n.sessionID
}

// Get retrieves a value from the session bucket.
func (n *NatsStore) Get(_ context.Context, key string) (string, bool, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to get '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return "", false, fmt.Errorf("failed to read '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return "", false, fmt.Errorf("failed to close '%s': %w", key, closeErr)
	}

	return string(data), true, nil
}

// Set stores a value in the session bucket, replacing any previous value.
func (n *NatsStore) Set(_ context.Context, key, value string) error {
	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader([]byte(value)))
	if err != nil {
		return fmt.Errorf("failed to put '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// Remove deletes a value. Removing a missing key is not an error.
func (n *NatsStore) Remove(_ context.Context, key string) error {
	err := n.store.Delete(key)
	if err != nil && !errors.Is(err, nats.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// End deletes the session bucket and everything stored in it.
func (n *NatsStore) End() error {
	err := n.jetstreamContext.DeleteObjectStore(n.bucket)
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to delete session bucket '%s': %w", n.bucket, err)
	}

	return nil
}
