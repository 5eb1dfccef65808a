// Package sse implements Server-Sent Events for pushing settings changes to connected clients.
package sse

import (
	"time"

	"github.com/prefhubapp/prefhub-server/internal/domain"
)

// EventType represents the type of SSE event.
type EventType string

const (
	// EventSettingsUpdated represents a settings change, from any writer.
	EventSettingsUpdated EventType = "settings.updated"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// SettingsEventData is the data payload for settings events.
type SettingsEventData struct {
	Settings domain.Settings `json:"settings"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewSettingsUpdatedEvent creates a settings.updated event.
func NewSettingsUpdatedEvent(s domain.Settings) Event {
	return Event{
		Type:      EventSettingsUpdated,
		Data:      SettingsEventData{Settings: s},
		Timestamp: time.Now(),
	}
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
