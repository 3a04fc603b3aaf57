// Package stream carries build log and status events between the isolated
// build workers and the durable consumers over Redis Streams. Delivery is
// at-least-once: entries are acknowledged only after their side effect is
// durable, so consumers must tolerate redelivered duplicates.
package stream

import (
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/domain"
)

// Stream entry field names. Producers and consumers must agree on these.
const (
	fieldDeploymentID = "deployment_id"
	fieldTimestamp    = "ts"
	fieldLevel        = "level"
	fieldText         = "text"
	fieldStatus       = "status"
	fieldURL          = "url"
)

func logValues(event domain.LogEvent) map[string]any {
	return map[string]any{
		fieldDeploymentID: event.DeploymentID,
		fieldTimestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldLevel:        event.Level,
		fieldText:         event.Text,
	}
}

func statusValues(event domain.StatusEvent) map[string]any {
	return map[string]any{
		fieldDeploymentID: event.DeploymentID,
		fieldTimestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldStatus:       event.Status,
		fieldURL:          event.URL,
	}
}

func stringField(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func timeField(values map[string]any, key string) time.Time {
	raw := stringField(values, key)
	if raw == "" {
		return time.Now().UTC()
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

// DecodeLogEvent converts a stream entry back into a LogEvent.
func DecodeLogEvent(msg redis.XMessage) domain.LogEvent {
	level := stringField(msg.Values, fieldLevel)
	if level == "" {
		level = domain.LogLevelInfo
	}
	return domain.LogEvent{
		DeploymentID: stringField(msg.Values, fieldDeploymentID),
		Timestamp:    timeField(msg.Values, fieldTimestamp),
		Level:        level,
		Text:         stringField(msg.Values, fieldText),
	}
}

// DecodeStatusEvent converts a stream entry back into a StatusEvent.
func DecodeStatusEvent(msg redis.XMessage) domain.StatusEvent {
	return domain.StatusEvent{
		DeploymentID: stringField(msg.Values, fieldDeploymentID),
		Timestamp:    timeField(msg.Values, fieldTimestamp),
		Status:       stringField(msg.Values, fieldStatus),
		URL:          stringField(msg.Values, fieldURL),
	}
}
