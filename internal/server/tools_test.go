// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/reminder"
	"github.com/jolks/todolist/internal/scheduler"
	"github.com/jolks/todolist/internal/storage"
	"github.com/jolks/todolist/internal/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockNotificationService is a mock implementation of the notification service for testing purposes
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) PermissionStatus(ctx context.Context) (model.PermissionStatus, error) {
	args := m.Called()
	return args.Get(0).(model.PermissionStatus), args.Error(1)
}

func (m *MockNotificationService) RequestPermission(ctx context.Context) (model.PermissionStatus, error) {
	args := m.Called()
	return args.Get(0).(model.PermissionStatus), args.Error(1)
}

func (m *MockNotificationService) PushToken(ctx context.Context, projectID string) (string, error) {
	args := m.Called(projectID)
	return args.String(0), args.Error(1)
}

func (m *MockNotificationService) Schedule(ctx context.Context, content model.Content, trigger model.Trigger) (string, error) {
	args := m.Called(content, trigger)
	return args.String(0), args.Error(1)
}

func (m *MockNotificationService) Cancel(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockNotificationService) Scheduled() []scheduler.Scheduled {
	args := m.Called()
	return args.Get(0).([]scheduler.Scheduled)
}

func (m *MockNotificationService) AddReceivedListener(fn func(model.Notification)) scheduler.Subscription {
	args := m.Called(fn)
	return args.Get(0).(scheduler.Subscription)
}

func (m *MockNotificationService) AddResponseListener(fn func(model.Response)) scheduler.Subscription {
	args := m.Called(fn)
	return args.Get(0).(scheduler.Subscription)
}

func (m *MockNotificationService) Respond(ctx context.Context, id, action string) error {
	args := m.Called(id, action)
	return args.Error(0)
}

func (m *MockNotificationService) Start(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockNotificationService) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func newTestDeps(t *testing.T) (*tasks.Store, *reminder.Reminders, *MockNotificationService) {
	t.Helper()
	kv := storage.NewMemoryStorage()
	store, err := tasks.NewStore(kv, tasks.WithLogger(logging.Discard()))
	require.NoError(t, err)
	svc := new(MockNotificationService)
	rem := reminder.New(svc, kv, reminder.WithLogger(logging.Discard()), reminder.WithProjectID("proj"))
	return store, rem, svc
}

func newTestServer(t *testing.T) (*MCPServer, *tasks.Store, *MockNotificationService) {
	t.Helper()
	store, rem, svc := newTestDeps(t)
	mcpServer, err := NewMCPServer(config.DefaultConfig(), store, rem)
	require.NoError(t, err)
	mcpServer.logger = logging.Discard()
	return mcpServer, store, svc
}

func request(t *testing.T, params interface{}) *protocol.CallToolRequest {
	t.Helper()
	if s, ok := params.(string); ok {
		return &protocol.CallToolRequest{RawArguments: json.RawMessage(s)}
	}
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return &protocol.CallToolRequest{RawArguments: json.RawMessage(raw)}
}

func decodeResult(t *testing.T, result *protocol.CallToolResult, v interface{}) {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	textContent, ok := result.Content[0].(*protocol.TextContent)
	require.True(t, ok, "expected TextContent")
	require.NoError(t, json.Unmarshal([]byte(textContent.Text), v))
}

// TestRegisterToolsDeclarative tests that every tool has a valid schema and a unique name
func TestRegisterToolsDeclarative(t *testing.T) {
	mcpServer, _, _ := newTestServer(t)

	seen := map[string]bool{}
	for _, def := range mcpServer.toolDefinitions() {
		assert.False(t, seen[def.Name], "duplicate tool %s", def.Name)
		seen[def.Name] = true
		assert.NotNil(t, def.Handler, def.Name)

		_, err := protocol.NewTool(def.Name, def.Description, def.Parameters)
		assert.NoError(t, err, def.Name)
	}

	for _, name := range []string{
		"list_tasks", "get_task", "add_task", "update_task", "remove_task", "reload_tasks",
		"schedule_reminder", "schedule_reminder_in", "schedule_daily_reminder",
		"schedule_weekly_reminder", "show_notification", "cancel_reminder",
		"cancel_all_reminders", "schedule_recurring_reminders", "schedule_daily_task_reminders",
		"refresh_reminders", "notification_permission", "request_notification_permission",
		"respond_notification",
	} {
		assert.True(t, seen[name], "missing tool %s", name)
	}

	assert.NotPanics(t, mcpServer.registerToolsDeclarative)
}

// TestTaskToolsScenario adds, completes and removes a task through the tools
func TestTaskToolsScenario(t *testing.T) {
	mcpServer, store, _ := newTestServer(t)
	ctx := context.Background()

	result, err := mcpServer.handleAddTask(ctx, request(t, AddTaskParams{ID: "1", Title: "  Buy milk "}))
	require.NoError(t, err)
	var added model.Task
	decodeResult(t, result, &added)
	assert.Equal(t, model.Task{ID: "1", Title: "Buy milk"}, added)

	result, err = mcpServer.handleUpdateTask(ctx, request(t, `{"id":"1","completed":true}`))
	require.NoError(t, err)
	var updated model.Task
	decodeResult(t, result, &updated)
	assert.Equal(t, model.Task{ID: "1", Title: "Buy milk", Completed: true}, updated)

	result, err = mcpServer.handleGetTask(ctx, request(t, TaskIDParams{ID: "1"}))
	require.NoError(t, err)
	var got model.Task
	decodeResult(t, result, &got)
	assert.Equal(t, updated, got)

	result, err = mcpServer.handleRemoveTask(ctx, request(t, TaskIDParams{ID: "1"}))
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Empty(t, store.List())
}

func TestHandleAddTaskGeneratesID(t *testing.T) {
	mcpServer, store, _ := newTestServer(t)

	result, err := mcpServer.handleAddTask(context.Background(), request(t, AddTaskParams{Title: "Write report"}))
	require.NoError(t, err)
	var added model.Task
	decodeResult(t, result, &added)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, []model.Task{added}, store.List())
}

func TestHandleAddTaskRejectsBlankTitle(t *testing.T) {
	mcpServer, store, _ := newTestServer(t)

	res, err := mcpServer.handleAddTask(context.Background(), request(t, AddTaskParams{Title: "   "}))
	assert.Nil(t, res)
	assert.True(t, errors.IsValidation(err))
	assert.Empty(t, store.List())
	assert.NotEmpty(t, store.State().Error)
}

func TestHandleUpdateTaskOnlyChangesPresentFields(t *testing.T) {
	mcpServer, store, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, model.Task{ID: "1", Title: "Buy milk", Completed: true}))

	result, err := mcpServer.handleUpdateTask(ctx, request(t, `{"id":"1","title":"Buy oat milk"}`))
	require.NoError(t, err)
	var updated model.Task
	decodeResult(t, result, &updated)
	assert.Equal(t, model.Task{ID: "1", Title: "Buy oat milk", Completed: true}, updated)

	_, err = mcpServer.handleUpdateTask(ctx, request(t, `{"id":"1","completed":false}`))
	require.NoError(t, err)
	task, _ := store.Get("1")
	assert.False(t, task.Completed)
	assert.Equal(t, "Buy oat milk", task.Title)
}

func TestTaskToolsUnknownID(t *testing.T) {
	mcpServer, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := mcpServer.handleGetTask(ctx, request(t, TaskIDParams{ID: "missing"}))
	assert.True(t, errors.IsNotFound(err))
	_, err = mcpServer.handleUpdateTask(ctx, request(t, `{"id":"missing","completed":true}`))
	assert.True(t, errors.IsNotFound(err))
	_, err = mcpServer.handleRemoveTask(ctx, request(t, TaskIDParams{ID: "missing"}))
	assert.True(t, errors.IsNotFound(err))

	_, err = mcpServer.handleGetTask(ctx, request(t, `{}`))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	_, err = mcpServer.handleGetTask(ctx, request(t, `{"id":`))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestHandleListTasks(t *testing.T) {
	mcpServer, store, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, model.Task{ID: "1", Title: "a"}))
	require.NoError(t, store.Add(ctx, model.Task{ID: "2", Title: "b", Completed: true}))

	result, err := mcpServer.handleListTasks(ctx, request(t, `{}`))
	require.NoError(t, err)
	var state tasks.State
	decodeResult(t, result, &state)
	assert.Len(t, state.Tasks, 2)
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)

	result, err = mcpServer.handleListTasks(ctx, request(t, ListTasksParams{Pending: true}))
	require.NoError(t, err)
	decodeResult(t, result, &state)
	assert.Equal(t, []model.Task{{ID: "1", Title: "a"}}, state.Tasks)
}

func TestHandleReloadTasks(t *testing.T) {
	mcpServer, _, _ := newTestServer(t)

	result, err := mcpServer.handleReloadTasks(context.Background(), request(t, `{}`))
	require.NoError(t, err)
	var state tasks.State
	decodeResult(t, result, &state)
	assert.Empty(t, state.Tasks)
}

func TestHandleScheduleReminder(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("Schedule",
		mock.MatchedBy(func(c model.Content) bool { return c.Body == "Don't forget: Buy milk" }),
		mock.MatchedBy(func(tr model.Trigger) bool { return tr.Kind == model.TriggerDelay })).Return("n1", nil)

	at := time.Now().Add(time.Hour).Format(time.RFC3339)
	result, err := mcpServer.handleScheduleReminder(ctx, request(t, ScheduleReminderParams{Title: "Buy milk", At: at}))
	require.NoError(t, err)
	var resp map[string]string
	decodeResult(t, result, &resp)
	assert.Equal(t, "n1", resp["id"])

	past := time.Now().Add(-time.Hour).Format(time.RFC3339)
	_, err = mcpServer.handleScheduleReminder(ctx, request(t, ScheduleReminderParams{Title: "Buy milk", At: past}))
	assert.True(t, errors.IsValidation(err))

	_, err = mcpServer.handleScheduleReminder(ctx, request(t, ScheduleReminderParams{Title: "Buy milk", At: "tomorrow"}))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	_, err = mcpServer.handleScheduleReminder(ctx, request(t, ScheduleReminderParams{At: at}))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	svc.AssertNumberOfCalls(t, "Schedule", 1)
}

func TestHandleScheduleReminderIn(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	delay := func(d time.Duration) interface{} {
		return mock.MatchedBy(func(tr model.Trigger) bool { return tr == model.After(d) })
	}
	svc.On("Schedule", mock.Anything, delay(30*time.Minute)).Return("default", nil)
	svc.On("Schedule", mock.Anything, delay(45*time.Second)).Return("seconds", nil)

	result, err := mcpServer.handleScheduleReminderIn(ctx, request(t, ScheduleReminderInParams{Title: "Stretch"}))
	require.NoError(t, err)
	var resp map[string]string
	decodeResult(t, result, &resp)
	assert.Equal(t, "default", resp["id"])

	result, err = mcpServer.handleScheduleReminderIn(ctx, request(t, ScheduleReminderInParams{Title: "Stretch", Minutes: 5, Seconds: 45}))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "seconds", resp["id"])
}

func TestHandleScheduleRepeatingReminders(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("Schedule", mock.Anything, model.DailyAt(9, 0)).Return("daily-default", nil)
	svc.On("Schedule", mock.Anything, model.DailyAt(0, 15)).Return("daily-midnight", nil)
	svc.On("Schedule", mock.Anything, model.WeeklyAt(time.Monday, 9, 0)).Return("weekly-default", nil)
	svc.On("Schedule", mock.Anything, model.WeeklyAt(time.Saturday, 18, 30)).Return("weekly-saturday", nil)

	var resp map[string]string

	result, err := mcpServer.handleScheduleDailyReminder(ctx, request(t, `{"title":"Stretch"}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "daily-default", resp["id"])

	result, err = mcpServer.handleScheduleDailyReminder(ctx, request(t, `{"title":"Stretch","hour":0,"minute":15}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "daily-midnight", resp["id"])

	result, err = mcpServer.handleScheduleWeeklyReminder(ctx, request(t, `{"title":"Review"}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "weekly-default", resp["id"])

	result, err = mcpServer.handleScheduleWeeklyReminder(ctx, request(t, `{"title":"Review","weekday":7,"hour":18,"minute":30}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "weekly-saturday", resp["id"])

	_, err = mcpServer.handleScheduleWeeklyReminder(ctx, request(t, `{"title":"Review","weekday":0}`))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
	_, err = mcpServer.handleScheduleDailyReminder(ctx, request(t, `{"title":"Stretch","hour":24}`))
	assert.True(t, errors.IsValidation(err))
}

func TestHandleRecurringRemindersUsesPendingTasks(t *testing.T) {
	mcpServer, store, svc := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, model.Task{ID: "1", Title: "a"}))
	require.NoError(t, store.Add(ctx, model.Task{ID: "2", Title: "b", Completed: true}))

	content := mock.MatchedBy(func(c model.Content) bool {
		return c.Title == "Task Reminder (1 pending)" && c.Body == "Don't forget: a"
	})
	svc.On("Schedule", content, mock.Anything).Return("r", nil).Times(2)

	result, err := mcpServer.handleScheduleRecurringReminders(ctx, request(t, RecurringRemindersParams{IntervalHours: 12}))
	require.NoError(t, err)
	var resp struct {
		IDs   []string `json:"ids"`
		Count int      `json:"count"`
	}
	decodeResult(t, result, &resp)
	assert.Equal(t, 2, resp.Count)
	svc.AssertExpectations(t)

	_, err = mcpServer.handleScheduleRecurringReminders(ctx, request(t, RecurringRemindersParams{IntervalHours: 30}))
	assert.True(t, errors.IsValidation(err))
}

func TestHandleDailyTaskReminders(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("Schedule", mock.Anything, model.DailyAt(8, 0)).Return("d1", nil)
	svc.On("Schedule", mock.Anything, model.DailyAt(20, 30)).Return("d2", nil)

	result, err := mcpServer.handleScheduleDailyTaskReminders(ctx,
		request(t, DailyTaskRemindersParams{Times: []string{"08:00", "20:30"}, Tasks: []string{"x"}}))
	require.NoError(t, err)
	var resp struct {
		IDs []string `json:"ids"`
	}
	decodeResult(t, result, &resp)
	assert.Equal(t, []string{"d1", "d2"}, resp.IDs)

	_, err = mcpServer.handleScheduleDailyTaskReminders(ctx, request(t, DailyTaskRemindersParams{Times: []string{"8pm"}}))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))

	svc.On("Scheduled").Return([]scheduler.Scheduled{{ID: "d1"}, {ID: "d2"}})
	result, err = mcpServer.handleListScheduledReminders(ctx, request(t, `{}`))
	require.NoError(t, err)
	var listed struct {
		Scheduled []scheduler.Scheduled `json:"scheduled"`
		Tracked   []string              `json:"tracked"`
	}
	decodeResult(t, result, &listed)
	assert.Len(t, listed.Scheduled, 2)
	assert.Equal(t, []string{"d1", "d2"}, listed.Tracked)
}

func TestHandleRefreshAndCancelAll(t *testing.T) {
	mcpServer, store, svc := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, model.Task{ID: "1", Title: "a", Completed: true}))

	svc.On("Schedule",
		mock.MatchedBy(func(c model.Content) bool { return c.Title == "All Done!" }),
		model.Immediately()).Return("done", nil).Once()

	result, err := mcpServer.handleRefreshReminders(ctx, request(t, `{}`))
	require.NoError(t, err)
	var resp struct {
		Count int `json:"count"`
	}
	decodeResult(t, result, &resp)
	assert.Zero(t, resp.Count)
	svc.AssertExpectations(t)

	result, err = mcpServer.handleCancelAllReminders(ctx, request(t, `{}`))
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestHandleCancelReminder(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("Cancel", "n1").Return(nil)
	svc.On("Cancel", "broken").Return(fmt.Errorf("host failure"))

	_, err := mcpServer.handleCancelReminder(ctx, request(t, ReminderIDParams{ID: "n1"}))
	require.NoError(t, err)
	_, err = mcpServer.handleCancelReminder(ctx, request(t, ReminderIDParams{ID: "broken"}))
	assert.True(t, errors.IsNotification(err))
	_, err = mcpServer.handleCancelReminder(ctx, request(t, `{}`))
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestHandlePermissionTools(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("PermissionStatus").Return(model.PermissionUndetermined, nil).Once()
	svc.On("RequestPermission").Return(model.PermissionGranted, nil)
	svc.On("PermissionStatus").Return(model.PermissionGranted, nil)
	svc.On("PushToken", "proj").Return("token-1", nil)

	var resp map[string]interface{}
	result, err := mcpServer.handleNotificationPermission(ctx, request(t, `{}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, false, resp["granted"])

	result, err = mcpServer.handleRequestNotificationPermission(ctx, request(t, `{}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, true, resp["granted"])

	result, err = mcpServer.handleRegisterPushNotifications(ctx, request(t, `{}`))
	require.NoError(t, err)
	decodeResult(t, result, &resp)
	assert.Equal(t, "token-1", resp["token"])
}

func TestHandleShowAndRespondNotification(t *testing.T) {
	mcpServer, _, svc := newTestServer(t)
	ctx := context.Background()

	svc.On("Schedule", model.Content{Title: "Hi", Body: "there", Sound: true}, model.Immediately()).Return("n1", nil)
	svc.On("Respond", "n1", "default").Return(nil)
	svc.On("Respond", "n2", "open").Return(fmt.Errorf("not delivered"))

	result, err := mcpServer.handleShowNotification(ctx, request(t, ShowNotificationParams{Title: "Hi", Body: "there"}))
	require.NoError(t, err)
	var resp map[string]string
	decodeResult(t, result, &resp)
	assert.Equal(t, "n1", resp["id"])

	_, err = mcpServer.handleRespondNotification(ctx, request(t, RespondNotificationParams{ID: "n1"}))
	require.NoError(t, err)
	_, err = mcpServer.handleRespondNotification(ctx, request(t, RespondNotificationParams{ID: "n2", Action: "open"}))
	assert.True(t, errors.IsNotification(err))
	svc.AssertExpectations(t)
}
