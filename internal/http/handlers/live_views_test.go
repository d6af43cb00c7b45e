package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/internal/realtime"
)

type staticQuerier struct {
	rows []liveview.Row
}

func (q staticQuerier) Query(ctx context.Context, req liveview.QueryRequest) ([]liveview.Row, error) {
	return q.rows, nil
}

func newViewServer(t *testing.T, querier liveview.Querier, hub *realtime.Hub) *httptest.Server {
	t.Helper()
	handler := NewLiveViewHandler(querier, hub, map[string]liveview.Options{
		"appointments": {
			Table:  "appointments",
			Filter: liveview.FilterSpec{{Field: "status", Op: liveview.OpEq, Operand: "booked"}},
			Order:  &liveview.OrderSpec{Field: "starts_at", Direction: liveview.Ascending},
		},
	}, nil, nil)

	r := chi.NewRouter()
	r.Get("/views/{table}/ws", handler.ServeWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialView(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrameUntil(t *testing.T, conn *websocket.Conn, ok func(viewFrame) bool) viewFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var frame viewFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if ok(frame) {
			return frame
		}
	}
	t.Fatal("no matching frame before deadline")
	return viewFrame{}
}

func TestLiveViewWSStreamsSnapshots(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()
	querier := staticQuerier{rows: []liveview.Row{
		{"id": 1, "status": "booked", "starts_at": 10},
	}}
	srv := newViewServer(t, querier, hub)
	conn := dialView(t, srv, "/views/appointments/ws")

	frame := readFrameUntil(t, conn, func(f viewFrame) bool {
		return f.State == "ready" && len(f.Rows) == 1
	})
	assert.Equal(t, "appointments", frame.Table)
	assert.False(t, frame.Loading)

	// A live insert lands in the next frame.
	hub.Publish(liveview.ChangeEvent{
		Table: "appointments",
		Kind:  liveview.EventInsert,
		Row:   liveview.Row{"id": 2, "status": "booked", "starts_at": 5},
	})
	frame = readFrameUntil(t, conn, func(f viewFrame) bool { return len(f.Rows) == 2 })
	assert.Equal(t, float64(2), frame.Rows[0]["id"], "live insert must respect ordering")
}

func TestLiveViewWSAppliesFilter(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()
	srv := newViewServer(t, staticQuerier{}, hub)
	conn := dialView(t, srv, "/views/appointments/ws")

	readFrameUntil(t, conn, func(f viewFrame) bool { return f.State == "ready" })

	hub.Publish(liveview.ChangeEvent{
		Table: "appointments",
		Kind:  liveview.EventInsert,
		Row:   liveview.Row{"id": 3, "status": "cancelled", "starts_at": 1},
	})
	hub.Publish(liveview.ChangeEvent{
		Table: "appointments",
		Kind:  liveview.EventInsert,
		Row:   liveview.Row{"id": 4, "status": "booked", "starts_at": 2},
	})

	frame := readFrameUntil(t, conn, func(f viewFrame) bool { return len(f.Rows) > 0 })
	require.Len(t, frame.Rows, 1, "cancelled appointment must not enter the view")
	assert.Equal(t, float64(4), frame.Rows[0]["id"])
}

func TestLiveViewWSUnknownTable(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()
	srv := newViewServer(t, staticQuerier{}, hub)

	resp, err := http.Get(srv.URL + "/views/secrets/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLiveViewWSBadLimit(t *testing.T) {
	hub := realtime.NewHub(nil)
	defer hub.Close()
	srv := newViewServer(t, staticQuerier{}, hub)

	resp, err := http.Get(srv.URL + "/views/appointments/ws?limit=-5")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
