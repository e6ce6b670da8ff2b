// SPDX-License-Identifier: AGPL-3.0-only
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	urlpkg "net/url"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jolks/todolist/internal/config"
	"github.com/jolks/todolist/internal/logging"
	"github.com/jolks/todolist/internal/model"
)

// Sink presents a delivered notification somewhere
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n model.Notification) error
	Close() error
}

// LogSink writes delivered notifications to the logger
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, n model.Notification) error {
	s.logger.Infof("Notification %s: %s - %s", n.ID, n.Content.Title, n.Content.Body)
	return nil
}

func (s *LogSink) Close() error { return nil }

// WebhookSink sends delivered notifications to a local HTTP endpoint
type WebhookSink struct {
	baseURL *urlpkg.URL
	sender  string
	client  *http.Client
}

// NewWebhookSink creates a webhook sink posting to baseURL
func NewWebhookSink(baseURL, sender string) (*WebhookSink, error) {
	u, err := urlpkg.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webhook url scheme: %q", u.Scheme)
	}
	if sender == "" {
		sender = "runtime:todolist"
	}
	return &WebhookSink{
		baseURL: u,
		sender:  sender,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, n model.Notification) error {
	params := s.baseURL.Query()
	params.Set("sender", s.sender)
	params.Set("id", n.ID)
	params.Set("title", n.Content.Title)
	params.Set("content", n.Content.Body)
	params.Set("tag", "reminder")

	reqURL := *s.baseURL
	reqURL.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}

func (s *WebhookSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// RedisSink publishes delivered notifications as JSON to a Redis channel
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a redis sink
func NewRedisSink(addr, password string, db int, channel string) *RedisSink {
	return &RedisSink{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		channel: channel,
	}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Deliver(ctx context.Context, n model.Notification) error {
	payload, err := encodeNotification(n)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

func encodeNotification(n model.Notification) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}
	return b, nil
}

// SinksFromConfig builds the sinks enabled by cfg. The log sink is always present.
func SinksFromConfig(cfg config.NotificationsConfig, logger *logging.Logger) ([]Sink, error) {
	sinks := []Sink{NewLogSink(logger)}
	if cfg.WebhookURL != "" {
		w, err := NewWebhookSink(cfg.WebhookURL, cfg.Sender)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, w)
	}
	if cfg.RedisAddr != "" {
		sinks = append(sinks, NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel))
	}
	return sinks, nil
}
