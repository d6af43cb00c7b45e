package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberhealth/clinicflow/internal/liveview"
	"github.com/emberhealth/clinicflow/pkg/logging"
)

// DefaultChannel is the Postgres NOTIFY channel the row-change trigger
// publishes on (see the notify_table_changes migration).
const DefaultChannel = "table_changes"

// notifyPayload is the JSON shape emitted by the notify_table_changes
// trigger function.
type notifyPayload struct {
	Table  string             `json:"table"`
	Kind   liveview.EventKind `json:"kind"`
	Row    liveview.Row       `json:"row,omitempty"`
	OldRow liveview.Row       `json:"old_row,omitempty"`
}

// PGListener bridges Postgres LISTEN/NOTIFY into a Hub. One listener
// serves every view in the process; there is no automatic reconnect, a
// dropped connection degrades views to their last snapshot.
type PGListener struct {
	pool    *pgxpool.Pool
	hub     *Hub
	channel string
	logger  *logging.Logger
}

// NewPGListener wires a listener to the pool and hub.
func NewPGListener(pool *pgxpool.Pool, hub *Hub, logger *logging.Logger) *PGListener {
	if logger == nil {
		logger = logging.Default()
	}
	return &PGListener{
		pool:    pool,
		hub:     hub,
		channel: DefaultChannel,
		logger:  logger.Component("pglistener"),
	}
}

// WithChannel overrides the NOTIFY channel name.
func (l *PGListener) WithChannel(name string) *PGListener {
	if name != "" {
		l.channel = name
	}
	return l
}

// Run pins one connection, issues LISTEN, and pumps notifications into the
// hub until the context ends or the connection drops.
func (l *PGListener) Run(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("realtime: acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, l.channel)); err != nil {
		return fmt.Errorf("realtime: listen on %s: %w", l.channel, err)
	}
	l.logger.Info("listening for table changes", "channel", l.channel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("realtime: wait for notification: %w", err)
		}
		l.dispatch(notification.Payload)
	}
}

func (l *PGListener) dispatch(payload string) {
	var p notifyPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		l.logger.Warn("dropping undecodable notification", "error", err)
		return
	}
	if p.Table == "" {
		l.logger.Warn("dropping notification without table")
		return
	}
	l.hub.Publish(liveview.ChangeEvent{
		Table:  p.Table,
		Kind:   p.Kind,
		Row:    p.Row,
		OldRow: p.OldRow,
	})
}
