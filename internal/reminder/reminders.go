// SPDX-License-Identifier: AGPL-3.0-only

// Package reminder schedules task reminders through the notification service
// and tracks the identifiers of the recurring batches so they can be
// cancelled together.
package reminder

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/scheduler"
	"github.com/jolks/todolist/internal/storage"
)

// Defaults used when a caller passes a zero value
const (
	DefaultDelayMinutes  = 30
	DefaultDelaySeconds  = 1800
	DefaultIntervalHours = 3
	DefaultHour          = 9
)

// DefaultWeekday is the weekly reminder day when none is given
const DefaultWeekday = time.Monday

// summaryLimit is how many titles a batch body lists before truncating
const summaryLimit = 3

// Data types attached to batch reminders
const (
	TypeRecurring = "recurring_reminder"
	TypeDaily     = "daily_reminder"
)

// DefaultDailyTimes are the times of day of the daily batch
var DefaultDailyTimes = []config.TimeOfDay{
	{Hour: 9}, {Hour: 12}, {Hour: 15}, {Hour: 18}, {Hour: 21},
}

// Reminders schedules reminders and owns the tracked identifier set
type Reminders struct {
	svc       scheduler.NotificationService
	kv        storage.Storage
	key       string
	projectID string
	interval  int
	times     []config.TimeOfDay
	logger    *logging.Logger

	// mu serializes read-modify-write of the tracked identifier set
	mu sync.Mutex
}

// Option configures Reminders
type Option func(*Reminders)

// WithLogger sets the logger
func WithLogger(l *logging.Logger) Option {
	return func(r *Reminders) { r.logger = l }
}

// WithProjectID sets the project id needed for push registration
func WithProjectID(id string) Option {
	return func(r *Reminders) { r.projectID = id }
}

// WithInterval sets the default spacing of the recurring batch in hours
func WithInterval(hours int) Option {
	return func(r *Reminders) { r.interval = hours }
}

// WithDailyTimes sets the default times of the daily batch
func WithDailyTimes(times []config.TimeOfDay) Option {
	return func(r *Reminders) { r.times = times }
}

// New creates a reminder scheduler over svc, keeping tracked identifiers in kv
func New(svc scheduler.NotificationService, kv storage.Storage, opts ...Option) *Reminders {
	r := &Reminders{
		svc:      svc,
		kv:       kv,
		key:      storage.ReminderIDsKey,
		interval: DefaultIntervalHours,
		times:    DefaultDailyTimes,
		logger:   logging.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ScheduleAt schedules a one-shot reminder at an absolute time. A time that
// is not at least a second in the future is rejected without calling the
// notification service.
func (r *Reminders) ScheduleAt(ctx context.Context, title string, at time.Time) (string, error) {
	seconds := int64(time.Until(at) / time.Second)
	if seconds <= 0 {
		r.logger.Warnf("Reminder time must be in the future: %s", at.Format(time.RFC3339))
		return "", errors.Validation("reminder time must be in the future")
	}
	return r.schedule(ctx, model.Content{
		Title: "Task Reminder",
		Body:  "Don't forget: " + title,
		Data:  map[string]interface{}{"taskTitle": title},
		Sound: true,
	}, model.After(time.Duration(seconds)*time.Second))
}

// ScheduleIn schedules a one-shot reminder after delay
func (r *Reminders) ScheduleIn(ctx context.Context, title string, delay time.Duration) (string, error) {
	if delay <= 0 {
		r.logger.Warnf("Reminder delay must be positive, got %s", delay)
		return "", errors.Validation("reminder delay must be positive")
	}
	return r.schedule(ctx, model.Content{
		Title: "Task Reminder",
		Body:  "Time to work on: " + title,
		Data:  map[string]interface{}{"taskTitle": title},
		Sound: true,
	}, model.After(delay))
}

// ScheduleInMinutes schedules a reminder after minutes, 30 when zero
func (r *Reminders) ScheduleInMinutes(ctx context.Context, title string, minutes int) (string, error) {
	if minutes == 0 {
		minutes = DefaultDelayMinutes
	}
	return r.ScheduleIn(ctx, title, time.Duration(minutes)*time.Minute)
}

// ScheduleInSeconds schedules a reminder after seconds, 1800 when zero
func (r *Reminders) ScheduleInSeconds(ctx context.Context, title string, seconds int) (string, error) {
	if seconds == 0 {
		seconds = DefaultDelaySeconds
	}
	return r.ScheduleIn(ctx, title, time.Duration(seconds)*time.Second)
}

// ScheduleDaily schedules a reminder repeating every day at hour:minute
func (r *Reminders) ScheduleDaily(ctx context.Context, title string, hour, minute int) (string, error) {
	if err := checkTimeOfDay(hour, minute); err != nil {
		r.logger.Warnf("Invalid daily reminder time: %v", err)
		return "", err
	}
	return r.schedule(ctx, model.Content{
		Title: "Daily Task Reminder",
		Body:  "Don't forget about: " + title,
		Data:  map[string]interface{}{"taskTitle": title},
		Sound: true,
	}, model.DailyAt(hour, minute))
}

// ScheduleWeekly schedules a reminder repeating every week on weekday at hour:minute
func (r *Reminders) ScheduleWeekly(ctx context.Context, title string, weekday time.Weekday, hour, minute int) (string, error) {
	if err := checkTimeOfDay(hour, minute); err != nil {
		r.logger.Warnf("Invalid weekly reminder time: %v", err)
		return "", err
	}
	if weekday < time.Sunday || weekday > time.Saturday {
		return "", errors.Validation(fmt.Sprintf("invalid weekday %d", weekday))
	}
	return r.schedule(ctx, model.Content{
		Title: "Weekly Task Reminder",
		Body:  "Weekly reminder: " + title,
		Data:  map[string]interface{}{"taskTitle": title},
		Sound: true,
	}, model.WeeklyAt(weekday, hour, minute))
}

// ShowNow shows a notification immediately
func (r *Reminders) ShowNow(ctx context.Context, title, body string) (string, error) {
	return r.schedule(ctx, model.Content{Title: title, Body: body, Sound: true}, model.Immediately())
}

// Cancel cancels one reminder and drops it from the tracked set
func (r *Reminders) Cancel(ctx context.Context, id string) error {
	if err := r.svc.Cancel(ctx, id); err != nil {
		r.logger.Warnf("Error cancelling notification %s: %v", id, err)
		return errors.Notification("cancel notification", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ids, err := r.readIDs(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, tracked := range ids {
		if tracked != id {
			kept = append(kept, tracked)
		}
	}
	if len(kept) == len(ids) {
		return nil
	}
	return r.writeIDs(ctx, kept)
}

// CancelAll cancels every tracked reminder and clears the tracked set. It
// returns how many were cancelled.
func (r *Reminders) CancelAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelAllLocked(ctx)
}

func (r *Reminders) cancelAllLocked(ctx context.Context) (int, error) {
	ids, err := r.readIDs(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := r.svc.Cancel(ctx, id); err != nil {
			r.logger.Warnf("Error cancelling recurring reminders: %v", err)
			return 0, errors.Notification("cancel recurring reminders", err)
		}
	}
	if err := r.kv.Remove(ctx, r.key); err != nil {
		r.logger.Warnf("Error clearing reminder ids: %v", err)
		return 0, errors.Persistence("clear reminder ids", err)
	}
	if len(ids) > 0 {
		r.logger.Infof("Cancelled %d recurring reminders", len(ids))
	}
	return len(ids), nil
}

// TrackedIDs returns the identifiers of the current batches
func (r *Reminders) TrackedIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readIDs(ctx)
}

// ScheduleRecurring replaces the recurring batch: one reminder every
// intervalHours over the next 24 hours for the remaining task titles. A zero
// interval uses the configured default.
func (r *Reminders) ScheduleRecurring(ctx context.Context, remaining []string, intervalHours int) ([]string, error) {
	if intervalHours == 0 {
		intervalHours = r.interval
	}
	if intervalHours < 1 || intervalHours > 24 {
		return nil, errors.Validation(fmt.Sprintf("interval must be between 1 and 24 hours, got %d", intervalHours))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.cancelAllLocked(ctx); err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		r.logger.Infof("No remaining tasks to set reminders for")
		return []string{}, nil
	}

	content := batchContent(fmt.Sprintf("Task Reminder (%d pending)", len(remaining)),
		"Don't forget: ", TypeRecurring, remaining)
	total := 24 / intervalHours
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		delay := time.Duration(i+1) * time.Duration(intervalHours) * time.Hour
		id, err := r.svc.Schedule(ctx, content, model.After(delay))
		if err != nil {
			return r.failBatch(ctx, ids, ids, "schedule recurring reminders", err)
		}
		ids = append(ids, id)
	}

	if err := r.writeIDs(ctx, ids); err != nil {
		return ids, err
	}
	r.logger.Infof("Scheduled %d recurring reminders every %d hours", len(ids), intervalHours)
	return ids, nil
}

// ScheduleDailyBatch schedules one daily reminder per time of day for the
// remaining task titles and adds them to the tracked set. Nil times use the
// configured defaults.
func (r *Reminders) ScheduleDailyBatch(ctx context.Context, remaining []string, times []config.TimeOfDay) ([]string, error) {
	if len(remaining) == 0 {
		return []string{}, nil
	}
	if times == nil {
		times = r.times
	}
	for _, t := range times {
		if err := checkTimeOfDay(t.Hour, t.Minute); err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tracked, err := r.readIDs(ctx)
	if err != nil {
		return nil, err
	}

	content := batchContent(fmt.Sprintf("Daily Task Reminder (%d pending)", len(remaining)),
		"Remaining tasks: ", TypeDaily, remaining)
	ids := make([]string, 0, len(times))
	for _, t := range times {
		id, err := r.svc.Schedule(ctx, content, model.DailyAt(t.Hour, t.Minute))
		if err != nil {
			return r.failBatch(ctx, ids, append(tracked, ids...), "schedule daily reminders", err)
		}
		ids = append(ids, id)
	}

	if err := r.writeIDs(ctx, append(tracked, ids...)); err != nil {
		return ids, err
	}
	r.logger.Infof("Scheduled %d daily reminders", len(ids))
	return ids, nil
}

// failBatch keeps track of the reminders scheduled before a failure so a
// later CancelAll still reaches them.
func (r *Reminders) failBatch(ctx context.Context, scheduled, track []string, op string, cause error) ([]string, error) {
	r.logger.Warnf("Error in %s: %v", op, cause)
	if err := r.writeIDs(ctx, track); err != nil {
		r.logger.Warnf("Error storing reminder ids: %v", err)
	}
	return scheduled, errors.Notification(op, cause)
}

// Refresh brings the recurring batch in line with tasks: with nothing left to
// do it cancels the batch and announces it, otherwise it reschedules.
func (r *Reminders) Refresh(ctx context.Context, tasks []model.Task, intervalHours int) error {
	remaining := model.Titles(model.Remaining(tasks))
	if len(remaining) > 0 {
		_, err := r.ScheduleRecurring(ctx, remaining, intervalHours)
		return err
	}

	if _, err := r.CancelAll(ctx); err != nil {
		return err
	}
	_, err := r.ShowNow(ctx, "All Done!", "No more tasks to remind you about!")
	return err
}

// Scheduled lists the reminders pending in the notification service
func (r *Reminders) Scheduled() []scheduler.Scheduled {
	return r.svc.Scheduled()
}

// Respond records a user interaction with a delivered notification
func (r *Reminders) Respond(ctx context.Context, id, action string) error {
	if err := r.svc.Respond(ctx, id, action); err != nil {
		r.logger.Warnf("Error responding to notification %s: %v", id, err)
		return errors.Notification("respond to notification", err)
	}
	return nil
}

// PermissionGranted reports whether notifications are allowed
func (r *Reminders) PermissionGranted(ctx context.Context) (bool, error) {
	status, err := r.svc.PermissionStatus(ctx)
	if err != nil {
		r.logger.Warnf("Error checking notification permissions: %v", err)
		return false, errors.Notification("check notification permission", err)
	}
	return status == model.PermissionGranted, nil
}

// RequestPermission asks for notification permission
func (r *Reminders) RequestPermission(ctx context.Context) (bool, error) {
	status, err := r.svc.RequestPermission(ctx)
	if err != nil {
		r.logger.Warnf("Error requesting notification permissions: %v", err)
		return false, errors.Notification("request notification permission", err)
	}
	return status == model.PermissionGranted, nil
}

// Register makes sure permission is granted and returns the push token for
// the configured project.
func (r *Reminders) Register(ctx context.Context) (string, error) {
	granted, err := r.PermissionGranted(ctx)
	if err != nil {
		return "", err
	}
	if !granted {
		if granted, err = r.RequestPermission(ctx); err != nil {
			return "", err
		}
	}
	if !granted {
		r.logger.Warnf("Failed to get push token for push notification")
		return "", errors.Notification("notification permission not granted", nil)
	}
	if r.projectID == "" {
		r.logger.Warnf("Project ID not found")
		return "", errors.Notification("project id not found", nil)
	}

	token, err := r.svc.PushToken(ctx, r.projectID)
	if err != nil {
		r.logger.Errorf("Error getting push token: %v", err)
		return "", errors.Notification("get push token", err)
	}
	return token, nil
}

// Summary lists up to three titles and counts the rest
func Summary(titles []string) string {
	if len(titles) > summaryLimit {
		return fmt.Sprintf("%s and %d more...", strings.Join(titles[:summaryLimit], ", "), len(titles)-summaryLimit)
	}
	return strings.Join(titles, ", ")
}

func batchContent(title, prefix, kind string, remaining []string) model.Content {
	tasks := make([]string, len(remaining))
	copy(tasks, remaining)
	return model.Content{
		Title: title,
		Body:  prefix + Summary(remaining),
		Data: map[string]interface{}{
			"type":      kind,
			"taskCount": len(remaining),
			"tasks":     tasks,
		},
		Sound: true,
	}
}

func (r *Reminders) schedule(ctx context.Context, content model.Content, trigger model.Trigger) (string, error) {
	id, err := r.svc.Schedule(ctx, content, trigger)
	if err != nil {
		r.logger.Warnf("Error scheduling notification %q: %v", content.Title, err)
		return "", errors.Notification("schedule notification", err)
	}
	return id, nil
}

func (r *Reminders) readIDs(ctx context.Context) ([]string, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if stderrors.Is(err, storage.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		r.logger.Warnf("Error getting reminder ids: %v", err)
		return nil, errors.Persistence("read reminder ids", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		r.logger.Warnf("Error decoding reminder ids: %v", err)
		return nil, errors.Persistence("decode reminder ids", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (r *Reminders) writeIDs(ctx context.Context, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return errors.Internal(err)
	}
	if err := r.kv.Set(ctx, r.key, raw); err != nil {
		r.logger.Warnf("Error storing reminder ids: %v", err)
		return errors.Persistence("store reminder ids", err)
	}
	return nil
}

func checkTimeOfDay(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return errors.Validation(fmt.Sprintf("hour must be between 0 and 23, got %d", hour))
	}
	if minute < 0 || minute > 59 {
		return errors.Validation(fmt.Sprintf("minute must be between 0 and 59, got %d", minute))
	}
	return nil
}
