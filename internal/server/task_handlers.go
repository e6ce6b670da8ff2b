// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"github.com/jolks/todolist/internal/errors"
	"github.com/jolks/todolist/internal/model"
	"github.com/jolks/todolist/internal/tasks"
)

// TaskIDParams holds the ID parameter used by multiple handlers
type TaskIDParams struct {
	ID string `json:"id" description:"the ID of the task to get/remove"`
}

// ListTasksParams defines parameters for listing tasks
type ListTasksParams struct {
	Pending bool `json:"pending,omitempty" description:"only list tasks that are not completed"`
}

// AddTaskParams defines parameters for adding a task
type AddTaskParams struct {
	Title string `json:"title" description:"task title, must not be blank"`
	ID    string `json:"id,omitempty" description:"task id, generated from the current time when omitted"`
}

// UpdateTaskParams defines parameters for updating a task. Only the fields
// present in the request are changed.
type UpdateTaskParams struct {
	ID        string `json:"id" description:"the ID of the task to update"`
	Title     string `json:"title,omitempty" description:"new title"`
	Completed bool   `json:"completed,omitempty" description:"new completion state"`
}

// handleListTasks lists the tasks with the store state
func (s *MCPServer) handleListTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListTasksParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling list_tasks request")

	state := s.store.State()
	if params.Pending {
		state.Tasks = model.Remaining(state.Tasks)
	}
	return createJSONResponse(state)
}

// handleGetTask gets a specific task by ID
func (s *MCPServer) handleGetTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling get_task request for task %s", taskID)

	task, ok := s.store.Get(taskID)
	if !ok {
		return createErrorResponse(errors.NotFound("task", taskID))
	}
	return createTaskResponse(task)
}

// handleAddTask adds a task
func (s *MCPServer) handleAddTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params AddTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling add_task request for %q", params.Title)

	task := tasks.NewTask(params.Title)
	if id := strings.TrimSpace(params.ID); id != "" {
		task.ID = id
	}

	// A persistence failure keeps the task in memory; list_tasks shows it
	// together with the error.
	if err := s.store.Add(ctx, task); err != nil {
		return createErrorResponse(err)
	}
	return createTaskResponse(task)
}

// handleUpdateTask merges the given fields into a task
func (s *MCPServer) handleUpdateTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params UpdateTaskParams
	if err := extractParams(request, &params); err != nil {
		return createErrorResponse(err)
	}
	if params.ID == "" {
		return createErrorResponse(errors.InvalidInput("task ID is required"))
	}

	present, err := presentParams(request)
	if err != nil {
		return createErrorResponse(err)
	}
	var patch model.TaskPatch
	if present["title"] {
		patch.Title = &params.Title
	}
	if present["completed"] {
		patch.Completed = &params.Completed
	}

	s.logger.Debugf("Handling update_task request for task %s", params.ID)

	if _, ok := s.store.Get(params.ID); !ok {
		return createErrorResponse(errors.NotFound("task", params.ID))
	}
	if err := s.store.Update(ctx, params.ID, patch); err != nil {
		return createErrorResponse(err)
	}

	task, ok := s.store.Get(params.ID)
	if !ok {
		return createErrorResponse(errors.NotFound("task", params.ID))
	}
	return createTaskResponse(task)
}

// handleRemoveTask removes a task
func (s *MCPServer) handleRemoveTask(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	taskID, err := extractTaskIDParam(request)
	if err != nil {
		return createErrorResponse(err)
	}

	s.logger.Debugf("Handling remove_task request for task %s", taskID)

	if _, ok := s.store.Get(taskID); !ok {
		return createErrorResponse(errors.NotFound("task", taskID))
	}
	if err := s.store.Remove(ctx, taskID); err != nil {
		return createErrorResponse(err)
	}

	return createSuccessResponse(fmt.Sprintf("Task %s removed successfully", taskID))
}

// handleReloadTasks reads the persisted task list again
func (s *MCPServer) handleReloadTasks(ctx context.Context, request *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	s.logger.Debugf("Handling reload_tasks request")

	if err := s.store.Load(ctx); err != nil {
		return createErrorResponse(err)
	}
	return createJSONResponse(s.store.State())
}
