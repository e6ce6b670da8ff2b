// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
)

// Behavior controls how delivered notifications are presented
type Behavior struct {
	ShowAlert bool
	PlaySound bool
	SetBadge  bool
}

// Options configures the local notification service
type Options struct {
	Permission model.PermissionStatus
	Behavior   Behavior
	Location   *time.Location
	Sinks      []Sink
	Logger     *logging.Logger
}

type entry struct {
	cronID  cron.EntryID
	content model.Content
	trigger model.Trigger
}

// cronScheduler is a NotificationService that fires notifications from a
// local cron.
type cronScheduler struct {
	cron       *cron.Cron
	mu         sync.RWMutex
	entries    map[string]*entry
	delivered  map[string]struct{}
	unread     int
	permission model.PermissionStatus
	token      string
	behavior   Behavior
	sinks      []Sink
	logger     *logging.Logger

	received  map[int]func(model.Notification)
	responses map[int]func(model.Response)
	nextSub   int

	// inflight tracks immediate deliveries; Stop waits for them before
	// closing the sinks
	inflight sync.WaitGroup
	stopped  bool
	stopOnce sync.Once
}

// NewScheduler creates a local notification service
func NewScheduler(opts Options) NotificationService {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	permission := opts.Permission
	if permission == "" {
		permission = model.PermissionUndetermined
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithParser(cron.NewParser(
			cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(logger)),
		),
	)

	return &cronScheduler{
		cron:       c,
		entries:    make(map[string]*entry),
		delivered:  make(map[string]struct{}),
		permission: permission,
		behavior:   opts.Behavior,
		sinks:      opts.Sinks,
		logger:     logger,
		received:   make(map[int]func(model.Notification)),
		responses:  make(map[int]func(model.Response)),
	}
}

// Start begins firing scheduled notifications
func (s *cronScheduler) Start(ctx context.Context) {
	s.cron.Start()

	// Listen for context cancellation to stop the scheduler
	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Errorf("Error stopping notification scheduler: %v", err)
		}
	}()
}

// Stop halts the cron and closes the sinks
func (s *cronScheduler) Stop() error {
	var firstErr error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		<-s.cron.Stop().Done()
		s.inflight.Wait()
		for _, sink := range s.sinks {
			if err := sink.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close %s sink: %w", sink.Name(), err)
			}
		}
	})
	return firstErr
}

// PermissionStatus returns the current permission
func (s *cronScheduler) PermissionStatus(ctx context.Context) (model.PermissionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permission, nil
}

// RequestPermission grants an undetermined permission. A denied permission
// stays denied: only the user can change it.
func (s *cronScheduler) RequestPermission(ctx context.Context) (model.PermissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission == model.PermissionUndetermined {
		s.permission = model.PermissionGranted
		s.logger.Infof("Notification permission granted")
	}
	return s.permission, nil
}

// PushToken returns this device's push token
func (s *cronScheduler) PushToken(ctx context.Context, projectID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permission != model.PermissionGranted {
		return "", fmt.Errorf("notification permission is %s", s.permission)
	}
	if projectID == "" {
		return "", fmt.Errorf("project id not found")
	}
	if s.token == "" {
		s.token = uuid.NewString()
	}
	return s.token, nil
}

// Schedule registers a notification and returns its identifier
func (s *cronScheduler) Schedule(ctx context.Context, content model.Content, trigger model.Trigger) (string, error) {
	if err := trigger.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", fmt.Errorf("notification service stopped")
	}
	if s.permission == model.PermissionDenied {
		return "", fmt.Errorf("notification permission denied")
	}

	id := uuid.NewString()
	job := func() { s.fire(id) }

	var (
		cronID cron.EntryID
		err    error
	)
	switch trigger.Kind {
	case model.TriggerImmediate:
		n := s.deliveredLocked(id, content, trigger)
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.deliver(n)
		}()
		return id, nil
	case model.TriggerDelay:
		cronID = s.cron.Schedule(onceAt(time.Now().Add(trigger.Delay)), cron.FuncJob(job))
	case model.TriggerDaily:
		cronID, err = s.cron.AddFunc(fmt.Sprintf("%d %d * * *", trigger.Minute, trigger.Hour), job)
	case model.TriggerWeekly:
		cronID, err = s.cron.AddFunc(fmt.Sprintf("%d %d * * %d", trigger.Minute, trigger.Hour, int(trigger.Weekday)), job)
	}
	if err != nil {
		return "", fmt.Errorf("failed to schedule notification: %w", err)
	}

	s.entries[id] = &entry{cronID: cronID, content: content, trigger: trigger}
	s.logger.Debugf("Scheduled notification %s (%s)", id, trigger.Kind)
	return id, nil
}

// Cancel removes a pending notification. Unknown identifiers are ignored.
func (s *cronScheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		s.logger.Debugf("Cancel of unknown notification %s ignored", id)
		return nil
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	return nil
}

// Scheduled lists pending notifications ordered by next run
func (s *cronScheduler) Scheduled() []Scheduled {
	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scheduled, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, Scheduled{ID: id, Content: e.content, Trigger: e.trigger, NextRun: next[e.cronID]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].ID < out[j].ID
		}
		return out[i].NextRun.Before(out[j].NextRun)
	})
	return out
}

// AddReceivedListener registers fn for every delivered notification
func (s *cronScheduler) AddReceivedListener(fn func(model.Notification)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.received[id] = fn
	return subscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.received, id)
	})
}

// AddResponseListener registers fn for every response to a delivered notification
func (s *cronScheduler) AddResponseListener(fn func(model.Response)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.responses[id] = fn
	return subscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.responses, id)
	})
}

// Respond records a user interaction with a delivered notification
func (s *cronScheduler) Respond(ctx context.Context, id, action string) error {
	s.mu.Lock()
	if _, ok := s.delivered[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("notification %s was not delivered", id)
	}
	delete(s.delivered, id)
	if s.unread > 0 {
		s.unread--
	}
	listeners := make([]func(model.Response), 0, len(s.responses))
	for _, fn := range s.responses {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	resp := model.Response{NotificationID: id, Action: action, At: time.Now()}
	for _, fn := range listeners {
		fn(resp)
	}
	return nil
}

// fire runs on the cron goroutine when an entry is due
func (s *cronScheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if !e.trigger.Repeats() {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
	n := s.deliveredLocked(id, e.content, e.trigger)
	s.mu.Unlock()

	s.deliver(n)
}

// deliveredLocked builds the delivered notification. Caller must hold s.mu.
func (s *cronScheduler) deliveredLocked(id string, content model.Content, trigger model.Trigger) model.Notification {
	s.delivered[id] = struct{}{}
	s.unread++
	if !s.behavior.PlaySound {
		content.Sound = false
	}
	n := model.Notification{ID: id, Content: content, Trigger: trigger, FiredAt: time.Now()}
	if s.behavior.SetBadge {
		n.Badge = s.unread
	}
	return n
}

func (s *cronScheduler) deliver(n model.Notification) {
	s.mu.RLock()
	listeners := make([]func(model.Notification), 0, len(s.received))
	for _, fn := range s.received {
		listeners = append(listeners, fn)
	}
	sinks := s.sinks
	showAlert := s.behavior.ShowAlert
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(n)
	}
	if !showAlert {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			s.logger.Warnf("Failed to deliver notification %s to %s: %v", n.ID, sink.Name(), err)
		}
	}
}

// onceSchedule fires a single time at a fixed instant
type onceSchedule struct {
	at time.Time
}

func onceAt(at time.Time) cron.Schedule {
	return onceSchedule{at: at}
}

// Next returns the instant until it has passed, then the zero time, which
// cron treats as never.
func (o onceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

type subscription func()

func (f subscription) Remove() { f() }
