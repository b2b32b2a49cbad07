package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxListener implements Listener on a dedicated pgx pool connection.
type PgxListener struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewPgxListener creates a listener backed by the given pool.
func NewPgxListener(pool *pgxpool.Pool) *PgxListener {
	return &PgxListener{pool: pool}
}

// Listen subscribes to a channel, acquiring a dedicated connection on first use.
func (l *PgxListener) Listen(ctx context.Context, channel string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire listen connection: %w", err)
		}
		l.conn = conn
	}

	if _, err := l.conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	return nil
}

// WaitForNotification blocks until a notification arrives or ctx is done.
func (l *PgxListener) WaitForNotification(ctx context.Context) (*Notification, error) {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("listener has no connection; call Listen first")
	}

	notification, err := conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}

	return &Notification{
		Channel: notification.Channel,
		Payload: notification.Payload,
	}, nil
}

// Close releases the dedicated connection.
func (l *PgxListener) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		l.conn.Release()
		l.conn = nil
	}
	return nil
}

// PgxSender implements Sender using pg_notify.
type PgxSender struct {
	pool *pgxpool.Pool
}

// NewPgxSender creates a sender backed by the given pool.
func NewPgxSender(pool *pgxpool.Pool) *PgxSender {
	return &PgxSender{pool: pool}
}

// Notify sends a notification on the given channel.
func (s *PgxSender) Notify(ctx context.Context, channel, payload string) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload); err != nil {
		return fmt.Errorf("failed to notify %s: %w", channel, err)
	}
	return nil
}

var (
	_ Listener = (*PgxListener)(nil)
	_ Sender   = (*PgxSender)(nil)
)
