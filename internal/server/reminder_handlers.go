// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/reminder"
)

// ScheduleReminderParams defines parameters for a reminder at an absolute time
type ScheduleReminderParams struct {
	Title string `json:"title" description:"task title shown in the reminder"`
	At    string `json:"at" description:"RFC 3339 time of the reminder, must be in the future"`
}

// ScheduleReminderInParams defines parameters for a reminder after a delay
type ScheduleReminderInParams struct {
	Title   string `json:"title" description:"task title shown in the reminder"`
	Minutes int    `json:"minutes,omitempty" description:"delay in minutes, default 30"`
	Seconds int    `json:"seconds,omitempty" description:"delay in seconds, takes precedence over minutes"`
}

// DailyReminderParams defines parameters for a daily repeating reminder
type DailyReminderParams struct {
	Title  string `json:"title" description:"task title shown in the reminder"`
	Hour   int    `json:"hour,omitempty" description:"hour of day 0-23, default 9"`
	Minute int    `json:"minute,omitempty" description:"minute 0-59, default 0"`
}

// WeeklyReminderParams defines parameters for a weekly repeating reminder
type WeeklyReminderParams struct {
	Title   string `json:"title" description:"task title shown in the reminder"`
	Weekday int    `json:"weekday,omitempty" description:"day of week 1-7 where 1 is Sunday, default 2 (Monday)"`
	Hour    int    `json:"hour,omitempty" description:"hour of day 0-23, default 9"`
	Minute  int    `json:"minute,omitempty" description:"minute 0-59, default 0"`
}

// ShowNotificationParams defines parameters for an immediate notification
type ShowNotificationParams struct {
	Title string `json:"title" description:"notification title"`
	Body  string `json:"body,omitempty" description:"notification body"`
}

// ReminderIDParams holds a notification identifier
type ReminderIDParams struct {
	ID string `json:"id" description:"the notification ID returned when the reminder was scheduled"`
}

// RecurringRemindersParams defines parameters for the recurring batch
type RecurringRemindersParams struct {
	IntervalHours int      `json:"interval_hours,omitempty" description:"hours between reminders 1-24, default from configuration"`
	Tasks         []string `json:"tasks,omitempty" description:"task titles to remind about, default the pending tasks"`
}

// DailyTaskRemindersParams defines parameters for the daily batch
type DailyTaskRemindersParams struct {
	Times []string `json:"times,omitempty" description:"times of day as HH:MM, default from configuration"`
	Tasks []string `json:"tasks,omitempty" description:"task titles to remind about, default the pending tasks"`
}

// RefreshRemindersParams defines parameters for refreshing the recurring batch
type RefreshRemindersParams struct {
	IntervalHours int `json:"interval_hours,omitempty" description:"hours between reminders 1-24, default from configuration"`
}

// RespondNotificationParams defines parameters for answering a delivered notification
type RespondNotificationParams struct {
	ID     string `json:"id" description:"the delivered notification ID"`
	Action string `json:"action,omitempty" description:"the action taken, default \"default\""`
}

// NoParams is used by tools without arguments
type NoParams struct{}

func requireTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.InvalidInput("title is required")
	}
	return nil
}

func createIDResponse(id string) (*protocol.CallToolResult, error) {
	return createJSONResponse(map[string]interface{}{"id": id})
}

func createIDsResponse(ids []string) (*protocol.CallToolResult, error) {
	if ids == nil {
		ids = []string{}
	}
	return createJSONResponse(map[string]interface{}{"ids": ids, "count": len(ids)})
}

// handleScheduleReminder schedules a reminder at an absolute time
func (s *MCPServer) handleScheduleReminder(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ScheduleReminderParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := requireTitle(params.Title); err != nil {
		return createErrorResponse(err)
	}
	at, err := time.Parse(time.RFC3339, params.At)
	if err != nil {
		return createErrorResponse(errors.InvalidInput(fmt.Sprintf("invalid time %q: %v", params.At, err)))
	}

	s.logger.Debugf("Handling schedule_reminder request for %q at %s", params.Title, params.At)

	id, err := s.reminders.ScheduleAt(ctx, params.Title, at)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDResponse(id)
}

// handleScheduleReminderIn schedules a reminder after a delay
func (s *MCPServer) handleScheduleReminderIn(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ScheduleReminderInParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := requireTitle(params.Title); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling schedule_reminder_in request for %q", params.Title)

	var (
		id  string
		err error
	)
	if params.Seconds != 0 {
		id, err = s.reminders.ScheduleInSeconds(ctx, params.Title, params.Seconds)
	} else {
		id, err = s.reminders.ScheduleInMinutes(ctx, params.Title, params.Minutes)
	}
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDResponse(id)
}

// handleScheduleDailyReminder schedules a daily repeating reminder
func (s *MCPServer) handleScheduleDailyReminder(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DailyReminderParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := requireTitle(params.Title); err != nil {
		return createErrorResponse(err)
	}
	present, err := presentParams(request)
	if err != nil {
		return createErrorResponse(err)
	}
	if !present["hour"] {
		params.Hour = reminder.DefaultHour
	}

	s.logger.Debugf("Handling schedule_daily_reminder request for %q at %02d:%02d", params.Title, params.Hour, params.Minute)

	id, err := s.reminders.ScheduleDaily(ctx, params.Title, params.Hour, params.Minute)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDResponse(id)
}

// handleScheduleWeeklyReminder schedules a weekly repeating reminder
func (s *MCPServer) handleScheduleWeeklyReminder(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params WeeklyReminderParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := requireTitle(params.Title); err != nil {
		return createErrorResponse(err)
	}
	present, err := presentParams(request)
	if err != nil {
		return createErrorResponse(err)
	}
	if !present["hour"] {
		params.Hour = reminder.DefaultHour
	}

	weekday := reminder.DefaultWeekday
	if present["weekday"] {
		if params.Weekday < 1 || params.Weekday > 7 {
			return createErrorResponse(errors.InvalidInput(fmt.Sprintf("weekday must be between 1 (Sunday) and 7 (Saturday), got %d", params.Weekday)))
		}
		weekday = time.Weekday(params.Weekday - 1)
	}

	s.logger.Debugf("Handling schedule_weekly_reminder request for %q on %s", params.Title, weekday)

	id, err := s.reminders.ScheduleWeekly(ctx, params.Title, weekday, params.Hour, params.Minute)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDResponse(id)
}

// handleShowNotification shows a notification immediately
func (s *MCPServer) handleShowNotification(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ShowNotificationParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if err := requireTitle(params.Title); err != nil {
		return createErrorResponse(err)
	}

	id, err := s.reminders.ShowNow(ctx, params.Title, params.Body)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDResponse(id)
}

// handleCancelReminder cancels one reminder
func (s *MCPServer) handleCancelReminder(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ReminderIDParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.ID == "" {
		return createErrorResponse(errors.InvalidInput("notification ID is required"))
	}

	s.logger.Debugf("Handling cancel_reminder request for %s", params.ID)

	if err := s.reminders.Cancel(ctx, params.ID); err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(fmt.Sprintf("Reminder %s cancelled", params.ID))
}

// handleCancelAllReminders cancels every tracked batch reminder
func (s *MCPServer) handleCancelAllReminders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	n, err := s.reminders.CancelAll(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(fmt.Sprintf("Cancelled %d recurring reminders", n))
}

// handleListScheduledReminders lists pending reminders and the tracked batch
func (s *MCPServer) handleListScheduledReminders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	tracked, err := s.reminders.TrackedIDs(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(map[string]interface{}{
		"scheduled": s.reminders.Scheduled(),
		"tracked":   tracked,
	})
}

// remainingTitles returns the requested titles, or the pending task titles
// when none were given
func (s *MCPServer) remainingTitles(requested []string) []string {
	if requested != nil {
		return requested
	}
	return model.Titles(s.store.Pending())
}

// handleScheduleRecurringReminders replaces the recurring batch
func (s *MCPServer) handleScheduleRecurringReminders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RecurringRemindersParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	remaining := s.remainingTitles(params.Tasks)
	s.logger.Debugf("Handling schedule_recurring_reminders request for %d tasks", len(remaining))

	ids, err := s.reminders.ScheduleRecurring(ctx, remaining, params.IntervalHours)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDsResponse(ids)
}

// handleScheduleDailyTaskReminders adds the daily batch
func (s *MCPServer) handleScheduleDailyTaskReminders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params DailyTaskRemindersParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	var times []config.TimeOfDay
	for _, raw := range params.Times {
		t, err := config.ParseTimeOfDay(raw)
		if err != nil {
			return createErrorResponse(errors.InvalidInput(err.Error()))
		}
		times = append(times, t)
	}

	remaining := s.remainingTitles(params.Tasks)
	s.logger.Debugf("Handling schedule_daily_task_reminders request for %d tasks", len(remaining))

	ids, err := s.reminders.ScheduleDailyBatch(ctx, remaining, times)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDsResponse(ids)
}

// handleRefreshReminders brings the recurring batch in line with the task list
func (s *MCPServer) handleRefreshReminders(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RefreshRemindersParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	if err := s.reminders.Refresh(ctx, s.store.List(), params.IntervalHours); err != nil {
		return createErrorResponse(err)
	}
	tracked, err := s.reminders.TrackedIDs(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createIDsResponse(tracked)
}

// handleNotificationPermission reports whether notifications are allowed
func (s *MCPServer) handleNotificationPermission(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	granted, err := s.reminders.PermissionGranted(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(map[string]interface{}{"granted": granted})
}

// handleRequestNotificationPermission asks for notification permission
func (s *MCPServer) handleRequestNotificationPermission(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	granted, err := s.reminders.RequestPermission(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(map[string]interface{}{"granted": granted})
}

// handleRegisterPushNotifications returns the device push token
func (s *MCPServer) handleRegisterPushNotifications(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	token, err := s.reminders.Register(ctx)
	if err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(map[string]interface{}{"token": token})
}

// handleRespondNotification records a response to a delivered notification
func (s *MCPServer) handleRespondNotification(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params RespondNotificationParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.ID == "" {
		return createErrorResponse(errors.InvalidInput("notification ID is required"))
	}
	if params.Action == "" {
		params.Action = "default"
	}

	if err := s.reminders.Respond(ctx, params.ID, params.Action); err != nil {
		return createErrorResponse(err)
	}
	return createSuccessResponse(fmt.Sprintf("Notification %s answered with %s", params.ID, params.Action))
}
