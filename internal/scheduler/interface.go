// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"time"

	"github.com/jolks/todolist/internal/model"
)

// Subscription is a registered listener. Remove releases it.
type Subscription interface {
	Remove()
}

// Scheduled is a pending notification
type Scheduled struct {
	ID      string        `json:"id"`
	Content model.Content `json:"content"`
	Trigger model.Trigger `json:"trigger"`
	NextRun time.Time     `json:"next_run"`
}

// NotificationService is the host notification service: it owns permission,
// fires scheduled notifications and reports delivery and response events.
type NotificationService interface {
	PermissionStatus(ctx context.Context) (model.PermissionStatus, error)
	RequestPermission(ctx context.Context) (model.PermissionStatus, error)
	PushToken(ctx context.Context, projectID string) (string, error)
	Schedule(ctx context.Context, content model.Content, trigger model.Trigger) (string, error)
	Cancel(ctx context.Context, id string) error
	Scheduled() []Scheduled
	AddReceivedListener(fn func(model.Notification)) Subscription
	AddResponseListener(fn func(model.Response)) Subscription
	Respond(ctx context.Context, id, action string) error
	Start(ctx context.Context)
	Stop() error
}
