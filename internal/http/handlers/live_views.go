package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/internal/observability/metrics"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// LiveViewHandler streams live table views to websocket clients. The set
// of exposed tables is a server-side registry: each entry fixes the
// filter, ordering, and key field a client gets for that table, so the
// socket never accepts filter input from the client.
type LiveViewHandler struct {
	querier  liveview.Querier
	source   liveview.Subscriber
	registry map[string]liveview.Options
	logger   *logging.Logger
	metrics  *metrics.ViewMetrics
	upgrader websocket.Upgrader
}

// NewLiveViewHandler wires the handler. registry maps table names to the
// view options served for them.
func NewLiveViewHandler(
	querier liveview.Querier,
	source liveview.Subscriber,
	registry map[string]liveview.Options,
	logger *logging.Logger,
	m *metrics.ViewMetrics,
) *LiveViewHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveViewHandler{
		querier:  querier,
		source:   source,
		registry: registry,
		logger:   logger.Component("liveview-ws"),
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser origin enforcement happens in the CORS/auth
			// middleware; the upgrader accepts what reached it.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// viewFrame is one snapshot message pushed to the client.
type viewFrame struct {
	Table   string         `json:"table"`
	State   string         `json:"state"`
	Loading bool           `json:"loading"`
	Error   string         `json:"error,omitempty"`
	Rows    []liveview.Row `json:"rows"`
}

// ServeWS upgrades the connection and pushes a snapshot frame whenever the
// view changes. The view lives exactly as long as the socket.
// GET /views/{table}/ws
// Query params:
//   - limit: positive row cap for the initial fetch (optional)
func (h *LiveViewHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	opts, ok := h.registry[table]
	if !ok {
		http.Error(w, `{"error": "unknown view"}`, http.StatusNotFound)
		return
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 {
			http.Error(w, `{"error": "limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}

	view, err := liveview.NewView(opts, h.querier, h.source, h.logger, h.metrics)
	if err != nil {
		h.logger.Error("view construction failed", "table", table, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "table", table, "error", err)
		return
	}
	defer conn.Close()
	defer view.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := view.Start(ctx); err != nil {
		h.logger.Error("view start failed", "table", table, "error", err)
		return
	}

	// Drain client frames so close/ping-pong processing happens; any read
	// error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.writeFrame(conn, table, view); err != nil {
		return
	}

	pings := time.NewTicker(wsPingInterval)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-view.Updates():
			if err := h.writeFrame(conn, table, view); err != nil {
				return
			}
		case <-pings.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (h *LiveViewHandler) writeFrame(conn *websocket.Conn, table string, view *liveview.View) error {
	frame := viewFrame{
		Table:   table,
		State:   view.State().String(),
		Loading: view.Loading(),
		Rows:    view.Rows(),
	}
	if err := view.Err(); err != nil {
		frame.Error = err.Error()
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
