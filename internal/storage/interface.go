// SPDX-License-Identifier: AGPL-3.0-only
package storage

import (
	"context"
	"errors"
)

// Fixed keys of the records kept by the application
const (
	// TasksKey holds the JSON array of tasks
	TasksKey = "@todolist_tasks"
	// ReminderIDsKey holds the JSON array of tracked reminder identifiers
	ReminderIDsKey = "@recurring_reminder_ids"
)

// ErrKeyNotFound is returned by Get when the key has no value
var ErrKeyNotFound = errors.New("key not found")

// Event signals that the value under Key changed outside this process
type Event struct {
	Key string
}

// Storage is a device-local key-value store holding whole serialized records.
type Storage interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases any resources used by the storage.
	Close() error
}

// Watcher is implemented by backends that can report external changes.
type Watcher interface {
	// Watch emits an event whenever a key changes on disk.
	// The returned channel is closed when the context is done or on fatal watcher error.
	Watch(ctx context.Context) (<-chan Event, error)
}
