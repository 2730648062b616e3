package feed

import "context"

// noopSource stands in when no real feed is configured or the feed failed to
// authenticate. The service then serves only the websocket and HTTP surface.
type noopSource struct {
	events chan Event
}

// NewNoopSource returns a source that never emits events.
func NewNoopSource() Source {
	return &noopSource{events: make(chan Event)}
}

func (s *noopSource) Start(context.Context) error { return nil }

func (s *noopSource) Events() <-chan Event { return s.events }

func (s *noopSource) SourceName(int64) string { return "" }

func (s *noopSource) History(context.Context, int64, int) ([]Event, error) {
	return nil, ErrHistoryUnsupported
}

func (s *noopSource) Connected() bool { return false }

func (s *noopSource) Close() { close(s.events) }
