package dto

import (
	"time"

	"crypto-signal-scraper/internal/entity"
)

// EventType tags an outbound websocket envelope.
type EventType string

const (
	EventInitialData    EventType = "initial_data"
	EventNewSignal      EventType = "new_signal"
	EventUpdateSignal   EventType = "update_signal"
	EventDeleteSignal   EventType = "delete_signal"
	EventStats          EventType = "stats"
	EventPong           EventType = "pong"
	EventAnnouncement   EventType = "announcement"
	EventServerShutdown EventType = "server_shutdown"
)

// Envelope is the wire shape of every outbound websocket event.
type Envelope struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// DeletePayload carries the id of a deleted signal.
type DeletePayload struct {
	ID string `json:"id"`
}

// PongPayload answers a ping.
type PongPayload struct {
	ServerTime time.Time `json:"server_time"`
}

// AnnouncementPayload carries an operator broadcast.
type AnnouncementPayload struct {
	Message string `json:"message"`
}

// ShutdownPayload tells observers the server is going away.
type ShutdownPayload struct {
	Message string `json:"message"`
}

// NewSignalEvent builds a new_signal envelope.
func NewSignalEvent(s *entity.Signal) Envelope {
	return Envelope{Type: EventNewSignal, Data: s, Timestamp: time.Now().UTC()}
}

// UpdateSignalEvent builds an update_signal envelope.
func UpdateSignalEvent(s *entity.Signal) Envelope {
	return Envelope{Type: EventUpdateSignal, Data: s, Timestamp: time.Now().UTC()}
}

// DeleteSignalEvent builds a delete_signal envelope.
func DeleteSignalEvent(id string) Envelope {
	return Envelope{Type: EventDeleteSignal, Data: DeletePayload{ID: id}, Timestamp: time.Now().UTC()}
}

// InitialDataEvent builds the snapshot sent to a freshly connected observer.
func InitialDataEvent(signals []entity.Signal) Envelope {
	return Envelope{Type: EventInitialData, Data: signals, Timestamp: time.Now().UTC()}
}

// StatsEvent builds a stats envelope.
func StatsEvent(stats *entity.StoreStats) Envelope {
	return Envelope{Type: EventStats, Data: stats, Timestamp: time.Now().UTC()}
}

// PongEvent answers an observer ping.
func PongEvent() Envelope {
	return Envelope{Type: EventPong, Data: PongPayload{ServerTime: time.Now().UTC()}, Timestamp: time.Now().UTC()}
}

// AnnouncementEvent builds an operator announcement envelope.
func AnnouncementEvent(message string) Envelope {
	return Envelope{Type: EventAnnouncement, Data: AnnouncementPayload{Message: message}, Timestamp: time.Now().UTC()}
}

// ServerShutdownEvent tells observers the server is shutting down.
func ServerShutdownEvent(message string) Envelope {
	return Envelope{Type: EventServerShutdown, Data: ShutdownPayload{Message: message}, Timestamp: time.Now().UTC()}
}

// ControlMessage is an inbound observer control frame.
type ControlMessage struct {
	Type  string `json:"type"`
	Limit int    `json:"limit,omitempty"`
}
