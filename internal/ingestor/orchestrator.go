package ingestor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"crypto-signal-scraper/internal/dto"
	"crypto-signal-scraper/internal/entity"
	"crypto-signal-scraper/internal/feed"
	"crypto-signal-scraper/internal/hub"
	"crypto-signal-scraper/internal/parser"
	"crypto-signal-scraper/internal/repository"
	"crypto-signal-scraper/pkg/logger"
	"crypto-signal-scraper/pkg/telegram"
)

// Config selects the feed sources the orchestrator listens to.
type Config struct {
	SourceIDs        []int64
	TrustedSourceIDs []int64
	BackfillEnabled  bool
	BackfillLimit    int
}

// Status is a point-in-time health view of the pipeline.
type Status struct {
	UptimeSeconds     int64 `json:"uptime_seconds"`
	MessagesProcessed int64 `json:"messages_processed"`
	SignalsParsed     int64 `json:"signals_parsed"`
	Observers         int   `json:"observers"`
	StoreConnected    bool  `json:"store_connected"`
	FeedConnected     bool  `json:"feed_connected"`
	SourcesMonitored  int   `json:"sources_monitored"`
}

// Orchestrator sequences each feed event through parse, persist, fan-out and
// alert. It is the only component with cross-cutting ordering logic: events
// are consumed one at a time in arrival order, and per-id races are resolved
// by the repository's serialization, not here.
type Orchestrator struct {
	monitored map[int64]bool
	trusted   map[int64]bool
	cfg       Config

	parser   *parser.Parser
	repo     repository.SignalRepository
	hub      *hub.Hub
	notifier telegram.Notifier
	source   feed.Source
	log      *logger.Logger

	processed atomic.Int64
	parsed    atomic.Int64
	startTime time.Time
}

// New wires the pipeline together.
func New(cfg Config, p *parser.Parser, repo repository.SignalRepository, h *hub.Hub, notifier telegram.Notifier, source feed.Source, log *logger.Logger) *Orchestrator {
	monitored := make(map[int64]bool, len(cfg.SourceIDs)+len(cfg.TrustedSourceIDs))
	trusted := make(map[int64]bool, len(cfg.TrustedSourceIDs))
	for _, id := range cfg.SourceIDs {
		monitored[id] = true
	}
	for _, id := range cfg.TrustedSourceIDs {
		monitored[id] = true
		trusted[id] = true
	}

	return &Orchestrator{
		monitored: monitored,
		trusted:   trusted,
		cfg:       cfg,
		parser:    p,
		repo:      repo,
		hub:       h,
		notifier:  notifier,
		source:    source,
		log:       log,
		startTime: time.Now(),
	}
}

// Run consumes the feed event stream until it closes or ctx is done.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.source.Events():
			if !ok {
				return
			}
			o.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent processes one feed event. A malformed event never halts
// ingestion of subsequent events.
func (o *Orchestrator) HandleEvent(ctx context.Context, event feed.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Panic while handling feed event",
				logger.StringField("kind", event.Kind.String()),
				logger.Field("panic", r))
		}
	}()

	switch event.Kind {
	case feed.KindCreated, feed.KindEdited:
		o.handleMessage(ctx, event)
	case feed.KindDeleted:
		o.handleDelete(ctx, event)
	}
}

func (o *Orchestrator) handleMessage(ctx context.Context, event feed.Event) {
	if !o.monitored[event.SourceID] {
		return
	}
	if event.Text == "" {
		return
	}
	o.processed.Add(1)

	isTrusted := o.trusted[event.SourceID]
	sourceName := o.source.SourceName(event.SourceID)

	signal := o.parser.Parse(parser.Input{
		Text:       event.Text,
		SourceID:   event.SourceID,
		SourceName: sourceName,
		MessageID:  event.MessageID,
		Trusted:    isTrusted,
	})
	if signal == nil {
		o.log.DebugContext(ctx, "Message not parsed as signal", logger.StringField("source", sourceName))
		return
	}
	o.parsed.Add(1)

	accepted, isNew, err := o.repo.Upsert(ctx, signal)
	if err != nil {
		o.log.Error("Failed to persist signal", logger.StringField("id", signal.ID), logger.ErrorField(err))
		return
	}
	if !accepted {
		o.log.DebugContext(ctx, "Signal rejected by store", logger.StringField("id", signal.ID))
		return
	}

	o.log.Info("Signal stored",
		logger.StringField("id", signal.ID),
		logger.StringField("pair", signal.Pair),
		logger.StringField("direction", string(signal.Direction)),
		logger.Field("is_new", isNew))

	if isNew {
		o.hub.Broadcast(ctx, dto.NewSignalEvent(signal))
		if err := o.notifier.SendSignalAlert(ctx, signal); err != nil {
			o.log.Warn("Failed to send alert", logger.StringField("id", signal.ID), logger.ErrorField(err))
		}
	} else {
		o.hub.Broadcast(ctx, dto.UpdateSignalEvent(signal))
	}
}

func (o *Orchestrator) handleDelete(ctx context.Context, event feed.Event) {
	ids := event.MessageIDs
	if len(ids) == 0 && event.MessageID != 0 {
		ids = []int64{event.MessageID}
	}

	for _, messageID := range ids {
		id := entity.SignalID(event.SourceID, messageID)
		newly, err := o.repo.Tombstone(ctx, id)
		if err != nil {
			o.log.Error("Failed to tombstone signal", logger.StringField("id", id), logger.ErrorField(err))
			continue
		}
		if newly {
			o.hub.Broadcast(ctx, dto.DeleteSignalEvent(id))
			o.log.Info("Signal deleted", logger.StringField("id", id))
		}
	}
}

// Backfill replays recent history for every monitored source through the
// same parse and persist path as live events, substituting the original
// message time for created_at. No broadcasts or alerts are emitted.
func (o *Orchestrator) Backfill(ctx context.Context) error {
	if !o.cfg.BackfillEnabled {
		o.log.Info("Backfill disabled")
		return nil
	}

	total := 0
	for sourceID := range o.monitored {
		events, err := o.source.History(ctx, sourceID, o.cfg.BackfillLimit)
		if errors.Is(err, feed.ErrHistoryUnsupported) {
			o.log.Info("Backfill skipped, feed has no history support")
			return nil
		}
		if err != nil {
			o.log.Error("Backfill failed for source", logger.Int64Field("source_id", sourceID), logger.ErrorField(err))
			continue
		}

		count := 0
		for _, event := range events {
			signal := o.parser.Parse(parser.Input{
				Text:       event.Text,
				SourceID:   event.SourceID,
				SourceName: o.source.SourceName(event.SourceID),
				MessageID:  event.MessageID,
				Trusted:    o.trusted[event.SourceID],
				SentAt:     event.SentAt,
			})
			if signal == nil {
				continue
			}
			accepted, isNew, err := o.repo.Upsert(ctx, signal)
			if err != nil {
				o.log.Error("Backfill upsert failed", logger.StringField("id", signal.ID), logger.ErrorField(err))
				continue
			}
			if accepted && isNew {
				count++
			}
		}
		if count > 0 {
			o.log.Info("Backfill stored signals", logger.Int64Field("source_id", sourceID), logger.IntField("count", count))
			total += count
		}
	}

	o.log.Info("Backfill complete", logger.IntField("total", total))
	return nil
}

// Snapshot returns the current pipeline status.
func (o *Orchestrator) Snapshot() Status {
	return Status{
		UptimeSeconds:     int64(time.Since(o.startTime).Seconds()),
		MessagesProcessed: o.processed.Load(),
		SignalsParsed:     o.parsed.Load(),
		Observers:         o.hub.Count(),
		StoreConnected:    o.repo.Connected(),
		FeedConnected:     o.source.Connected(),
		SourcesMonitored:  len(o.monitored),
	}
}

// Heartbeat logs a one-line liveness summary.
func (o *Orchestrator) Heartbeat() {
	status := o.Snapshot()
	o.log.Info("Heartbeat",
		logger.IntField("observers", status.Observers),
		logger.Field("store_connected", status.StoreConnected),
		logger.Field("feed_connected", status.FeedConnected),
		logger.Int64Field("processed", status.MessagesProcessed),
		logger.Int64Field("parsed", status.SignalsParsed))
}

// Shutdown tells every observer the server is going away and closes the
// connections.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.hub.Broadcast(ctx, dto.ServerShutdownEvent("Server restarting"))
	o.hub.CloseAll("server shutting down")
}
