package http

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"crypto-signal-scraper/internal/dto"
	"crypto-signal-scraper/internal/entity"
	"crypto-signal-scraper/internal/feed"
	"crypto-signal-scraper/internal/hub"
	"crypto-signal-scraper/internal/ingestor"
	"crypto-signal-scraper/internal/repository"
	"crypto-signal-scraper/pkg/logger"
)

const (
	// initialSnapshotSize is the number of records a fresh observer gets.
	initialSnapshotSize = 50
	// maxSnapshotLimit clamps observer-requested snapshot sizes.
	maxSnapshotLimit = 200
	// maxControlFrameBytes bounds inbound observer frames.
	maxControlFrameBytes = 1 << 20
)

// Handler serves the observer websocket endpoint, the health surface and the
// operator ingress routes.
type Handler struct {
	hub      *hub.Hub
	repo     repository.SignalRepository
	orch     *ingestor.Orchestrator
	log      *logger.Logger
	upgrader      websocket.Upgrader
	appName       string
	version       string
	operatorToken string
}

// NewHandler creates the HTTP handler. An empty operatorToken disables the
// operator routes entirely.
func NewHandler(h *hub.Hub, repo repository.SignalRepository, orch *ingestor.Orchestrator, log *logger.Logger, appName, version, operatorToken string) *Handler {
	return &Handler{
		hub:  h,
		repo: repo,
		orch: orch,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		appName:       appName,
		version:       version,
		operatorToken: operatorToken,
	}
}

// RegisterRoutes attaches all routes to the Echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Health)
	e.GET("/health", h.Health)
	e.GET("/healthz", h.Health)
	e.GET("/ws", h.WebSocket)

	apiV1 := e.Group("/api/v1")
	apiV1.GET("/signals", h.RecentSignals)
	apiV1.GET("/stats", h.Stats)

	// Announcements and deletions are destructive; tombstones in particular
	// are terminal, so these routes sit behind the operator bearer token.
	operator := apiV1.Group("", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: h.validOperatorToken,
		ErrorHandler: func(err error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "operator token required"})
		},
	}))
	operator.POST("/announcements", h.Announce)
	operator.DELETE("/sources/:source_id/messages/:message_id", h.DeleteMessage)
}

func (h *Handler) validOperatorToken(token string, _ echo.Context) (bool, error) {
	if h.operatorToken == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.operatorToken)) == 1, nil
}

// Health reports service status and pipeline connectivity.
func (h *Handler) Health(c echo.Context) error {
	status := h.orch.Snapshot()
	state := "healthy"
	if !status.StoreConnected || !status.FeedConnected {
		state = "degraded"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":    state,
		"service":   h.appName,
		"version":   h.version,
		"pipeline":  status,
		"timestamp": time.Now().UTC(),
	})
}

// WebSocket upgrades the connection, registers it with the hub, pushes the
// initial snapshot and then answers control messages until the peer leaves.
func (h *Handler) WebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", logger.ErrorField(err))
		return nil
	}

	sink := newWSSink(conn)
	h.hub.Register(sink)
	defer func() {
		h.hub.Unregister(sink)
		_ = conn.Close()
	}()

	ctx := c.Request().Context()

	signals, err := h.repo.Recent(ctx, initialSnapshotSize, "")
	if err != nil {
		h.log.Warn("Failed to load initial snapshot", logger.ErrorField(err))
		signals = []entity.Signal{}
	}
	if err := h.hub.SendTo(ctx, sink, dto.InitialDataEvent(signals)); err != nil {
		return nil
	}

	conn.SetReadLimit(maxControlFrameBytes)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}

		var msg dto.ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		h.handleControlMessage(c, sink, msg)
	}
}

func (h *Handler) handleControlMessage(c echo.Context, sink hub.Sink, msg dto.ControlMessage) {
	ctx := c.Request().Context()

	switch msg.Type {
	case "ping":
		_ = h.hub.SendTo(ctx, sink, dto.PongEvent())
	case "get_stats":
		stats, err := h.repo.Stats(ctx)
		if err != nil {
			h.log.Warn("Failed to load stats", logger.ErrorField(err))
			stats = &entity.StoreStats{}
		}
		_ = h.hub.SendTo(ctx, sink, dto.StatsEvent(stats))
	case "get_signals":
		limit := msg.Limit
		if limit <= 0 {
			limit = initialSnapshotSize
		}
		if limit > maxSnapshotLimit {
			limit = maxSnapshotLimit
		}
		signals, err := h.repo.Recent(ctx, limit, "")
		if err != nil {
			signals = []entity.Signal{}
		}
		_ = h.hub.SendTo(ctx, sink, dto.InitialDataEvent(signals))
	}
}

// RecentSignals returns the newest records over plain HTTP.
func (h *Handler) RecentSignals(c echo.Context) error {
	limit := initialSnapshotSize
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
		}
		limit = parsed
	}
	if limit > maxSnapshotLimit {
		limit = maxSnapshotLimit
	}

	signals, err := h.repo.Recent(c.Request().Context(), limit, entity.SignalStatus(c.QueryParam("status")))
	if err != nil {
		h.log.Error("Failed to query recent signals", logger.ErrorField(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable"})
	}
	return c.JSON(http.StatusOK, signals)
}

// Stats returns aggregate counts over plain HTTP.
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.repo.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store unavailable"})
	}
	return c.JSON(http.StatusOK, stats)
}

// Announce pushes an announcement to every connected observer.
func (h *Handler) Announce(c echo.Context) error {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&req); err != nil || req.Message == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message is required"})
	}

	h.hub.Broadcast(c.Request().Context(), dto.AnnouncementEvent(req.Message))
	return c.JSON(http.StatusOK, echo.Map{"observers": h.hub.Count()})
}

// DeleteMessage is the deletion ingress: the Bot API feed cannot observe
// message deletions, so deletions enter the pipeline here and follow the
// same orchestrator path as feed events.
func (h *Handler) DeleteMessage(c echo.Context) error {
	sourceID, err := strconv.ParseInt(c.Param("source_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid source id"})
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid message id"})
	}

	h.orch.HandleEvent(c.Request().Context(), feed.Event{
		Kind:       feed.KindDeleted,
		SourceID:   sourceID,
		MessageIDs: []int64{messageID},
	})
	return c.JSON(http.StatusAccepted, echo.Map{"id": entity.SignalID(sourceID, messageID)})
}
