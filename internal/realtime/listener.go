package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tiger-life/internal/util"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DefaultChannel is the NOTIFY channel the change feed triggers write to
const DefaultChannel = "row_changes"

// Backoff computes exponential reconnect delays
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	current time.Duration
}

// Next returns the delay before the next attempt and doubles it up to Max
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	} else {
		b.current *= 2
	}
	if b.current > b.Max {
		b.current = b.Max
	}
	return b.current
}

// Reset starts the sequence over after a healthy connection
func (b *Backoff) Reset() {
	b.current = 0
}

// Listener reads LISTEN/NOTIFY row changes from Postgres and publishes them
// to a hub. It reconnects with backoff whenever the connection drops.
type Listener struct {
	connString string
	channel    string
	hub        *Hub
	backoff    Backoff
	logger     *zap.Logger
}

// NewListener creates a listener for the given database
func NewListener(connString string, hub *Hub) *Listener {
	return &Listener{
		connString: connString,
		channel:    DefaultChannel,
		hub:        hub,
		backoff:    Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second},
		logger:     util.ComponentLogger("realtime-listener"),
	}
}

// Run listens until ctx is cancelled
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := l.backoff.Next()
		util.RealtimeReconnectsTotal.Inc()
		l.logger.Warn("Change feed disconnected, reconnecting",
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	l.backoff.Reset()
	l.logger.Info("Listening for row changes", zap.String("channel", l.channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for notification: %w", err)
		}

		change, err := DecodeChange([]byte(n.Payload))
		if err != nil {
			l.logger.Error("Dropping undecodable change", zap.Error(err))
			continue
		}
		l.hub.Publish(change)
	}
}

// DecodeChange parses a NOTIFY payload
func DecodeChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode change: %w", err)
	}
	if c.Table == "" || c.Op == "" {
		return Change{}, fmt.Errorf("change is missing table or op")
	}
	return c, nil
}
