package feed

import (
	"context"
	"errors"
	"time"
)

// ErrHistoryUnsupported is returned by sources that cannot iterate past
// messages. Backfill is then skipped.
var ErrHistoryUnsupported = errors.New("feed source does not support history iteration")

// EventKind classifies an inbound feed event.
type EventKind int

const (
	KindCreated EventKind = iota
	KindEdited
	KindDeleted
)

func (k EventKind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindEdited:
		return "edited"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one message lifecycle notification from the upstream feed.
// Deleted events carry a batch of message ids; the others carry a single
// message id and its text.
type Event struct {
	Kind       EventKind
	SourceID   int64
	MessageID  int64
	MessageIDs []int64
	Text       string
	SentAt     time.Time
}

// Source is the upstream message feed. Implementations own their transport;
// consumers see only the event stream and the two lookups.
type Source interface {
	// Start begins delivering events. It returns once the source is
	// listening; events arrive on Events until ctx is done or Close.
	Start(ctx context.Context) error
	// Events is the stream of inbound feed events, in arrival order.
	Events() <-chan Event
	// SourceName resolves a source id to a human-readable name.
	SourceName(id int64) string
	// History returns up to limit past messages for a source in
	// reverse-chronological order, or ErrHistoryUnsupported.
	History(ctx context.Context, sourceID int64, limit int) ([]Event, error)
	// Connected reports whether the source is live.
	Connected() bool
	// Close stops the source and closes the event stream.
	Close()
}
