// Package storage persists delivery history, user event history, and
// durable key-value state on the device.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by KV lookups for missing keys.
var ErrNotFound = errors.New("not found")

// StorageError wraps a durable read/write failure.
type StorageError struct {
	Op    string
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// HistoryStore records experiment exposures and user events, and answers
// the frequency questions the rule evaluator asks. Reads may run
// concurrently with the orchestrator's single-writer appends.
type HistoryStore interface {
	// AppendExperimentHistory records that an experiment was delivered now.
	AppendExperimentHistory(ctx context.Context, experimentID string) error

	// AppendUserEvent records that a named event occurred now.
	AppendUserEvent(ctx context.Context, name string) error

	// LastExperimentSeen returns the most recent delivery time of an
	// experiment. ok is false when it was never delivered.
	LastExperimentSeen(ctx context.Context, experimentID string) (t time.Time, ok bool, err error)

	// CountUserEvents counts recorded events with the given name at or
	// after since. A zero since counts the whole history.
	CountUserEvents(ctx context.Context, name string, since time.Time) (int, error)
}

// KVStore is durable string-keyed storage for the crash record, the user
// id, and first-run counters.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// StoreSet groups the on-device stores behind one lifecycle.
type StoreSet struct {
	History HistoryStore
	KV      KVStore

	closer func() error
}

// Close closes the underlying database.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
