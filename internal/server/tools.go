// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/ThinkInAIXYZ/go-mcp/server"
)

// ToolDefinition represents a tool that can be registered with the MCP server
type ToolDefinition struct {
	// Name is the name of the tool
	Name string

	// Description is a brief description of what the tool does
	Description string

	// Handler is the function that will be called when the tool is invoked
	Handler func(context.Context, *protocol.CallToolRequest) (*protocol.CallToolResult, error)

	// Parameters is the parameter schema for the tool (can be a struct)
	Parameters interface{}
}

// toolDefinitions lists every tool the server exposes
func (s *MCPServer) toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "list_tasks",
			Description: "Lists the tasks with the loading and error state of the store",
			Handler:     s.handleListTasks,
			Parameters:  ListTasksParams{},
		},
		{
			Name:        "get_task",
			Description: "Gets a task by ID",
			Handler:     s.handleGetTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "add_task",
			Description: "Adds a task and saves the task list",
			Handler:     s.handleAddTask,
			Parameters:  AddTaskParams{},
		},
		{
			Name:        "update_task",
			Description: "Changes the title or completion state of a task",
			Handler:     s.handleUpdateTask,
			Parameters:  UpdateTaskParams{},
		},
		{
			Name:        "remove_task",
			Description: "Removes a task",
			Handler:     s.handleRemoveTask,
			Parameters:  TaskIDParams{},
		},
		{
			Name:        "reload_tasks",
			Description: "Reads the saved task list again",
			Handler:     s.handleReloadTasks,
			Parameters:  NoParams{},
		},
		{
			Name:        "schedule_reminder",
			Description: "Schedules a one-time reminder for a task at a future time",
			Handler:     s.handleScheduleReminder,
			Parameters:  ScheduleReminderParams{},
		},
		{
			Name:        "schedule_reminder_in",
			Description: "Schedules a one-time reminder for a task after a delay",
			Handler:     s.handleScheduleReminderIn,
			Parameters:  ScheduleReminderInParams{},
		},
		{
			Name:        "schedule_daily_reminder",
			Description: "Schedules a reminder for a task every day",
			Handler:     s.handleScheduleDailyReminder,
			Parameters:  DailyReminderParams{},
		},
		{
			Name:        "schedule_weekly_reminder",
			Description: "Schedules a reminder for a task every week",
			Handler:     s.handleScheduleWeeklyReminder,
			Parameters:  WeeklyReminderParams{},
		},
		{
			Name:        "show_notification",
			Description: "Shows a notification now",
			Handler:     s.handleShowNotification,
			Parameters:  ShowNotificationParams{},
		},
		{
			Name:        "cancel_reminder",
			Description: "Cancels a scheduled reminder",
			Handler:     s.handleCancelReminder,
			Parameters:  ReminderIDParams{},
		},
		{
			Name:        "cancel_all_reminders",
			Description: "Cancels every recurring and daily task reminder",
			Handler:     s.handleCancelAllReminders,
			Parameters:  NoParams{},
		},
		{
			Name:        "list_scheduled_reminders",
			Description: "Lists pending reminders and the tracked recurring reminder IDs",
			Handler:     s.handleListScheduledReminders,
			Parameters:  NoParams{},
		},
		{
			Name:        "schedule_recurring_reminders",
			Description: "Replaces the recurring reminders for the remaining tasks over the next 24 hours",
			Handler:     s.handleScheduleRecurringReminders,
			Parameters:  RecurringRemindersParams{},
		},
		{
			Name:        "schedule_daily_task_reminders",
			Description: "Schedules daily reminders for the remaining tasks at fixed times of day",
			Handler:     s.handleScheduleDailyTaskReminders,
			Parameters:  DailyTaskRemindersParams{},
		},
		{
			Name:        "refresh_reminders",
			Description: "Reschedules the recurring reminders from the current task list",
			Handler:     s.handleRefreshReminders,
			Parameters:  RefreshRemindersParams{},
		},
		{
			Name:        "notification_permission",
			Description: "Reports whether notifications are allowed",
			Handler:     s.handleNotificationPermission,
			Parameters:  NoParams{},
		},
		{
			Name:        "request_notification_permission",
			Description: "Asks for permission to show notifications",
			Handler:     s.handleRequestNotificationPermission,
			Parameters:  NoParams{},
		},
		{
			Name:        "register_push_notifications",
			Description: "Registers for push notifications and returns the push token",
			Handler:     s.handleRegisterPushNotifications,
			Parameters:  NoParams{},
		},
		{
			Name:        "respond_notification",
			Description: "Records a response to a delivered notification",
			Handler:     s.handleRespondNotification,
			Parameters:  RespondNotificationParams{},
		},
	}
}

// registerToolsDeclarative sets up all the MCP tools using a more declarative approach
func (s *MCPServer) registerToolsDeclarative() {
	for _, tool := range s.toolDefinitions() {
		registerToolWithError(s.server, tool)
	}
}

// registerToolWithError registers a tool with error handling
func registerToolWithError(srv *server.Server, def ToolDefinition) {
	tool, err := protocol.NewTool(def.Name, def.Description, def.Parameters)
	if err != nil {
		// The parameter structs are fixed at compile time, so a schema
		// error is a programming error
		panic(err)
	}

	srv.RegisterTool(tool, def.Handler)
}
