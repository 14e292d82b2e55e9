// Package ws is the bidirectional event channel between the browser UI and
// the job service.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/italolelis/imgbb_downloader/internal/events"
	"github.com/italolelis/imgbb_downloader/internal/logctx"
	"github.com/italolelis/imgbb_downloader/internal/telemetry"
)

// Inbound event names.
const (
	EventStart   = "start-download"
	EventPause   = "pause-download"
	EventCancel  = "cancel-download"
	EventRestart = "restart-download"
)

const DefaultPingInterval = 30 * time.Second

// Commands is the job service driven by the channel. *pipeline.Service implements it.
type Commands interface {
	Start(ctx context.Context, urls []string, sink events.Sink) error
	Pause(ctx context.Context, url string, sink events.Sink)
	Cancel(ctx context.Context, url string, sink events.Sink)
	Restart(ctx context.Context, url string, sink events.Sink) error
}

type startPayload struct {
	URLs []string `json:"urls"`
	// Concurrency is accepted for compatibility; the server-wide limit applies.
	Concurrency int `json:"concurrency"`
}

type urlPayload struct {
	URL string `json:"url"`
}

type Handler struct {
	commands     Commands
	jobCtx       context.Context
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	telemetry    *telemetry.Telemetry
}

// NewHandler creates the channel handler. Jobs started through it run under
// jobCtx rather than the connection, so they outlive a disconnect.
func NewHandler(jobCtx context.Context, commands Commands, pingInterval time.Duration, t *telemetry.Telemetry) *Handler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	return &Handler{
		commands:     commands,
		jobCtx:       jobCtx,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		telemetry: t,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.HandleConnection)

	return r
}

// HandleConnection upgrades the request and serves the client until it goes away.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("failed to upgrade connection", "err", err)

		return
	}
	defer conn.Close()

	c := newClient(uuid.NewString(), conn)

	logger = logger.With("client_id", c.id)
	logger.Info("client connected")

	h.telemetry.IncrementClients()
	defer h.telemetry.DecrementClients()

	ctx := logctx.WithLogger(logctx.WithRequestID(h.jobCtx, c.id), logger)

	writeErr := make(chan error, 1)

	go func() {
		writeErr <- c.writePump(h.pingInterval)
	}()

	h.readPump(ctx, c)
	c.close()

	if err := <-writeErr; err != nil {
		logger.Debug("write pump stopped", "err", err)
	}

	logger.Info("client disconnected")
}

func (h *Handler) readPump(ctx context.Context, c *client) {
	logger := logctx.LoggerFromContext(ctx)
	pongWait := 2 * h.pingInterval

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("connection closed unexpectedly", "err", err)
			}

			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			logger.Warn("failed to decode message", "err", err)
			c.Publish(events.Error("", "Invalid message"))

			continue
		}

		h.dispatch(ctx, c, f)
	}
}

// dispatch runs one inbound command. Batches run in the background; the
// channel stays responsive to pause and cancel while they do.
func (h *Handler) dispatch(ctx context.Context, c *client, f frame) {
	logger := logctx.LoggerFromContext(ctx)
	logger.Debug("received event", "event", f.Event)

	switch f.Event {
	case EventStart:
		var p startPayload
		if !decode(ctx, c, f, &p) {
			return
		}

		go func() {
			if err := h.commands.Start(ctx, p.URLs, c); err != nil {
				logger.Warn("batch ended early", "err", err)
			}
		}()
	case EventPause:
		var p urlPayload
		if decode(ctx, c, f, &p) {
			h.commands.Pause(ctx, p.URL, c)
		}
	case EventCancel:
		var p urlPayload
		if decode(ctx, c, f, &p) {
			h.commands.Cancel(ctx, p.URL, c)
		}
	case EventRestart:
		var p urlPayload
		if !decode(ctx, c, f, &p) {
			return
		}

		go func() {
			if err := h.commands.Restart(ctx, p.URL, c); err != nil {
				logger.Warn("restart ended early", "url", p.URL, "err", err)
			}
		}()
	default:
		logger.Warn("unknown event", "event", f.Event)
		c.Publish(events.Error("", "Unknown event: "+f.Event))
	}
}

func decode(ctx context.Context, c *client, f frame, v any) bool {
	if len(f.Data) == 0 {
		f.Data = json.RawMessage("{}")
	}

	if err := json.Unmarshal(f.Data, v); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to decode event", "event", f.Event, "err", err)
		c.Publish(events.Error("", "Invalid "+f.Event+" payload"))

		return false
	}

	return true
}
