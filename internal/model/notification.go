// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"fmt"
	"time"
)

// PermissionStatus is the notification permission granted by the user
type PermissionStatus string

// Permission states
const (
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
	PermissionUndetermined PermissionStatus = "undetermined"
)

// String returns the string representation of the status
func (s PermissionStatus) String() string {
	return string(s)
}

// Content is what a notification shows
type Content struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Data  map[string]interface{} `json:"data,omitempty"`
	Sound bool                   `json:"sound"`
}

// TriggerKind selects how a notification is scheduled
type TriggerKind string

// Trigger kinds
const (
	TriggerImmediate TriggerKind = "immediate"
	TriggerDelay     TriggerKind = "delay"
	TriggerDaily     TriggerKind = "daily"
	TriggerWeekly    TriggerKind = "weekly"
)

// Trigger describes when a notification fires
type Trigger struct {
	Kind    TriggerKind   `json:"kind"`
	Delay   time.Duration `json:"delay,omitempty"`
	Hour    int           `json:"hour,omitempty"`
	Minute  int           `json:"minute,omitempty"`
	Weekday time.Weekday  `json:"weekday,omitempty"`
}

// Immediately fires as soon as it is scheduled
func Immediately() Trigger {
	return Trigger{Kind: TriggerImmediate}
}

// After fires once after d
func After(d time.Duration) Trigger {
	return Trigger{Kind: TriggerDelay, Delay: d}
}

// DailyAt fires every day at hour:minute
func DailyAt(hour, minute int) Trigger {
	return Trigger{Kind: TriggerDaily, Hour: hour, Minute: minute}
}

// WeeklyAt fires every week on weekday at hour:minute
func WeeklyAt(weekday time.Weekday, hour, minute int) Trigger {
	return Trigger{Kind: TriggerWeekly, Weekday: weekday, Hour: hour, Minute: minute}
}

// Repeats reports whether the trigger fires more than once
func (t Trigger) Repeats() bool {
	return t.Kind == TriggerDaily || t.Kind == TriggerWeekly
}

// Validate checks the trigger fields for its kind
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerImmediate:
		return nil
	case TriggerDelay:
		if t.Delay <= 0 {
			return fmt.Errorf("delay must be positive, got %s", t.Delay)
		}
		return nil
	case TriggerDaily, TriggerWeekly:
		if t.Hour < 0 || t.Hour > 23 {
			return fmt.Errorf("hour must be between 0 and 23, got %d", t.Hour)
		}
		if t.Minute < 0 || t.Minute > 59 {
			return fmt.Errorf("minute must be between 0 and 59, got %d", t.Minute)
		}
		if t.Kind == TriggerWeekly && (t.Weekday < time.Sunday || t.Weekday > time.Saturday) {
			return fmt.Errorf("invalid weekday %d", t.Weekday)
		}
		return nil
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
}

// Notification is a delivered notification
type Notification struct {
	ID      string    `json:"id"`
	Content Content   `json:"content"`
	Trigger Trigger   `json:"trigger"`
	FiredAt time.Time `json:"fired_at"`
	// Badge is the count of delivered notifications not yet responded to,
	// set only when badges are enabled
	Badge int `json:"badge,omitempty"`
}

// Response is a user interaction with a delivered notification
type Response struct {
	NotificationID string    `json:"notification_id"`
	Action         string    `json:"action"`
	At             time.Time `json:"at"`
}
