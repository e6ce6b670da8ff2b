// SPDX-License-Identifier: AGPL-3.0-only

// Package tasks keeps the in-memory task list and mirrors it, whole, to a
// single record of the local key-value store on every mutation.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/storage"
)

// ChangeFunc is called with the new task list after every mutation
type ChangeFunc func(ctx context.Context, tasks []model.Task)

// State is the store as seen by the presentation layer
type State struct {
	Tasks   []model.Task `json:"tasks"`
	Loading bool         `json:"loading"`
	Error   string       `json:"error,omitempty"`
}

// Store is the task store. The in-memory list is the source of truth for the
// session; a failed write leaves it ahead of the persisted record until the
// next successful write.
type Store struct {
	// op serializes operations: at most one is in flight
	op sync.Mutex

	mu      sync.RWMutex
	tasks   []model.Task
	lastErr error
	// written is the last record this store wrote or loaded; dirty is set
	// while the in-memory list is ahead of it
	written []byte
	dirty   bool

	loading   atomic.Bool
	kv        storage.Storage
	key       string
	schema    *jsonschema.Schema
	logger    *logging.Logger
	listeners []ChangeFunc
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKey overrides the storage key of the task record
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// NewStore creates an empty store over kv. Call Load to read the persisted record.
func NewStore(kv storage.Storage, opts ...Option) (*Store, error) {
	schema, err := compileRecordSchema()
	if err != nil {
		return nil, errors.Internal(err)
	}
	s := &Store{
		tasks:  []model.Task{},
		kv:     kv,
		key:    storage.TasksKey,
		schema: schema,
		logger: logging.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewTask builds a task with a trimmed title and an id made of the creation
// time in milliseconds and a random suffix
func NewTask(title string) model.Task {
	return model.Task{
		ID:    strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()[:8],
		Title: strings.TrimSpace(title),
	}
}

// OnChange registers fn to be called after every mutation. fn runs while the
// store's operation lock is held and must not call Add, Update, Remove or Load.
func (s *Store) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// List returns a copy of the current tasks
func (s *Store) List() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Task(nil), s.tasks...)
}

// Pending returns the tasks that are not completed
func (s *Store) Pending() []model.Task {
	return model.Remaining(s.List())
}

// Get returns the task with the given id
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Loading reports whether an operation is in flight
func (s *Store) Loading() bool {
	return s.loading.Load()
}

// Err returns the error recorded by the last operation, or nil
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// State returns a snapshot of tasks, loading flag and last error message
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Tasks:   append([]model.Task(nil), s.tasks...),
		Loading: s.loading.Load(),
	}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// Load reads the persisted record. A missing record leaves the list as it is;
// an unreadable or invalid one is recorded as the last error and also leaves
// the list as it is.
func (s *Store) Load(ctx context.Context) error {
	done := s.begin()
	raw, err := s.kv.Get(ctx, s.key)
	if stderrors.Is(err, storage.ErrKeyNotFound) {
		s.logger.Debugf("No stored tasks under %s", s.key)
		return done(nil)
	}
	if err != nil {
		return done(errors.Persistence("failed to fetch tasks", err))
	}
	loaded, err := s.decode(raw)
	if err != nil {
		return done(err)
	}

	s.mu.Lock()
	s.tasks = loaded
	s.written = raw
	s.dirty = false
	s.mu.Unlock()
	s.logger.Debugf("Loaded %d tasks", len(loaded))
	return done(nil)
}

func (s *Store) decode(raw []byte) ([]model.Task, error) {
	if err := validateRecord(s.schema, raw); err != nil {
		return nil, errors.Persistence("failed to fetch tasks", err)
	}
	var loaded []model.Task
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, errors.Persistence("failed to fetch tasks", err)
	}
	if loaded == nil {
		loaded = []model.Task{}
	}
	return loaded, nil
}

// Add appends task and persists the list. The title must be non-empty after
// trimming and the id must be set; id uniqueness is the caller's concern.
func (s *Store) Add(ctx context.Context, task model.Task) error {
	done := s.begin()
	if strings.TrimSpace(task.Title) == "" {
		return done(errors.Validation("task title is required"))
	}
	if task.ID == "" {
		return done(errors.Validation("task id is required"))
	}

	next := append(s.List(), task)
	return done(s.commit(ctx, next))
}

// Update merges patch into the task with the given id and persists the list.
// An unknown id is a no-op.
func (s *Store) Update(ctx context.Context, id string, patch model.TaskPatch) error {
	done := s.begin()
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return done(errors.Validation("task title is required"))
	}

	current := s.List()
	found := false
	for i, t := range current {
		if t.ID == id {
			current[i] = patch.Apply(t)
			found = true
		}
	}
	if !found {
		s.logger.Debugf("Update of unknown task %s ignored", id)
		return done(nil)
	}
	return done(s.commit(ctx, current))
}

// Remove deletes the task with the given id and persists the list.
// An unknown id is a no-op.
func (s *Store) Remove(ctx context.Context, id string) error {
	done := s.begin()

	current := s.List()
	next := make([]model.Task, 0, len(current))
	for _, t := range current {
		if t.ID != id {
			next = append(next, t)
		}
	}
	if len(next) == len(current) {
		s.logger.Debugf("Remove of unknown task %s ignored", id)
		return done(nil)
	}
	return done(s.commit(ctx, next))
}

// begin takes the operation lock, raises the loading flag and clears the last
// error. The returned func records err, lowers the flag and releases the lock.
func (s *Store) begin() func(err error) error {
	s.op.Lock()
	s.loading.Store(true)
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	return func(err error) error {
		if err != nil {
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
			if errors.IsValidation(err) {
				s.logger.Debugf("Rejected task operation: %v", err)
			} else {
				s.logger.Warnf("Task operation failed: %v", err)
			}
		}
		s.loading.Store(false)
		s.op.Unlock()
		return err
	}
}

// commit swaps in next, notifies listeners and writes the whole list.
// Caller must hold s.op.
func (s *Store) commit(ctx context.Context, next []model.Task) error {
	s.mu.Lock()
	s.tasks = next
	listeners := append([]ChangeFunc(nil), s.listeners...)
	s.mu.Unlock()

	err := s.persist(ctx, next)

	snapshot := append([]model.Task(nil), next...)
	for _, fn := range listeners {
		fn(ctx, snapshot)
	}
	return err
}

func (s *Store) persist(ctx context.Context, tasks []model.Task) error {
	b, err := json.Marshal(tasks)
	if err == nil {
		err = s.kv.Set(ctx, s.key, b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dirty = true
		return errors.Persistence("failed to save tasks", err)
	}
	s.written = b
	s.dirty = false
	return nil
}

// Watch reloads the list whenever the record changes outside the process.
// Backends that cannot watch make this a no-op.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.kv.(storage.Watcher)
	if !ok {
		return nil
	}
	ch, err := w.Watch(ctx)
	if err != nil {
		return errors.Persistence("failed to watch tasks", err)
	}
	go func() {
		for evt := range ch {
			if evt.Key != s.key {
				continue
			}
			s.reload(ctx)
		}
	}()
	return nil
}

// reload replaces the list with a record changed outside the process. It
// skips the echo of the store's own writes and never overwrites a list that
// is ahead of storage. The last operation's error is left as it is.
func (s *Store) reload(ctx context.Context) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.RLock()
	dirty, written := s.dirty, s.written
	s.mu.RUnlock()
	if dirty {
		s.logger.Warnf("Task record changed on disk while unsaved changes are pending, not reloading")
		return
	}

	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		if !stderrors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Warnf("Failed to reload tasks: %v", err)
		}
		return
	}
	if bytes.Equal(raw, written) {
		return
	}
	loaded, err := s.decode(raw)
	if err != nil {
		s.logger.Warnf("Ignoring changed task record: %v", err)
		return
	}

	s.mu.Lock()
	s.tasks = loaded
	s.written = raw
	s.mu.Unlock()
	s.logger.Debugf("Task record changed on disk, reloaded %d tasks", len(loaded))
}
