package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"crypto-signal-scraper/internal/dto"
	"crypto-signal-scraper/pkg/logger"
)

// DefaultSendTimeout bounds one delivery attempt to one sink.
const DefaultSendTimeout = 5 * time.Second

// Sink is a single observer connection.
type Sink interface {
	// Send delivers one serialized event. It must respect ctx cancellation.
	Send(ctx context.Context, payload []byte) error
	// Close tears the connection down with a reason visible to the peer.
	Close(reason string) error
	// ID identifies the sink in logs.
	ID() string
}

// Hub owns the set of live observer connections and fans events out to them.
// A sink that fails or times out during a broadcast is pruned after the pass;
// there is no reconnect-and-replay.
type Hub struct {
	mu          sync.Mutex
	sinks       map[Sink]struct{}
	log         *logger.Logger
	sendTimeout time.Duration
}

// New creates an empty hub. A non-positive sendTimeout falls back to the
// default.
func New(log *logger.Logger, sendTimeout time.Duration) *Hub {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Hub{
		sinks:       make(map[Sink]struct{}),
		log:         log,
		sendTimeout: sendTimeout,
	}
}

// Register adds a sink to the live set.
func (h *Hub) Register(s Sink) {
	h.mu.Lock()
	h.sinks[s] = struct{}{}
	total := len(h.sinks)
	h.mu.Unlock()
	h.log.Info("Observer connected", logger.StringField("sink", s.ID()), logger.IntField("total", total))
}

// Unregister removes a sink from the live set.
func (h *Hub) Unregister(s Sink) {
	h.mu.Lock()
	delete(h.sinks, s)
	total := len(h.sinks)
	h.mu.Unlock()
	h.log.Info("Observer disconnected", logger.StringField("sink", s.ID()), logger.IntField("total", total))
}

// Count returns the number of live sinks.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

// Broadcast serializes the event once and attempts delivery to a snapshot of
// the current sink set. Failed sinks are removed after the pass completes.
func (h *Hub) Broadcast(ctx context.Context, event dto.Envelope) {
	h.mu.Lock()
	if len(h.sinks) == 0 {
		h.mu.Unlock()
		return
	}
	snapshot := make([]Sink, 0, len(h.sinks))
	for s := range h.sinks {
		snapshot = append(snapshot, s)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to serialize event", logger.StringField("type", string(event.Type)), logger.ErrorField(err))
		return
	}

	var dead []Sink
	for _, s := range snapshot {
		if err := h.send(ctx, s, payload); err != nil {
			h.log.Warn("Delivery failed, pruning sink",
				logger.StringField("sink", s.ID()),
				logger.StringField("type", string(event.Type)),
				logger.ErrorField(err))
			dead = append(dead, s)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, s := range dead {
			delete(h.sinks, s)
		}
		h.mu.Unlock()
		for _, s := range dead {
			_ = s.Close("delivery failed")
		}
	}
}

// SendTo delivers one event to a single sink.
func (h *Hub) SendTo(ctx context.Context, s Sink, event dto.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.send(ctx, s, payload)
}

func (h *Hub) send(ctx context.Context, s Sink, payload []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	return s.Send(sendCtx, payload)
}

// CloseAll closes every sink and empties the live set.
func (h *Hub) CloseAll(reason string) {
	h.mu.Lock()
	snapshot := make([]Sink, 0, len(h.sinks))
	for s := range h.sinks {
		snapshot = append(snapshot, s)
	}
	h.sinks = make(map[Sink]struct{})
	h.mu.Unlock()

	for _, s := range snapshot {
		_ = s.Close(reason)
	}
}
