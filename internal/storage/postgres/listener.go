package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/relay"
)

// OrderInsertsChannel is the NOTIFY channel fed by the orders insert trigger.
const OrderInsertsChannel = "order_inserts"

var _ relay.Feed = (*Listener)(nil)

// Listener delivers NOTIFY payloads from one channel. It holds a dedicated
// pool connection and re-establishes it after connection loss, waiting
// retryDelay between attempts. Payloads sent while disconnected are lost.
type Listener struct {
	pool       *pgxpool.Pool
	channel    string
	retryDelay time.Duration
	lg         *zap.Logger

	mu        sync.Mutex
	conn      *pgxpool.Conn
	connected atomic.Bool
}

// NewListener creates a Listener on channel. It connects on the first Next.
func NewListener(pool *pgxpool.Pool, channel string, retryDelay time.Duration, lg *zap.Logger) *Listener {
	if lg == nil {
		lg = zap.NewNop()
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Listener{pool: pool, channel: channel, retryDelay: retryDelay, lg: lg}
}

// Next blocks until a notification arrives or ctx is done.
func (l *Listener) Next(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.conn == nil {
			if err := l.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				l.lg.Warn("Listen failed, retrying", zap.String("channel", l.channel), zap.Error(err))
				if err := sleep(ctx, l.retryDelay); err != nil {
					return nil, err
				}
				continue
			}
		}

		n, err := l.conn.Conn().WaitForNotification(ctx)
		if err == nil {
			return []byte(n.Payload), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.lg.Warn("Lost listen connection", zap.String("channel", l.channel), zap.Error(err))
		l.dropConn()
	}
}

// Connected reports whether the listen connection is established.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Close releases the listen connection. Call it after the reader has
// stopped.
func (l *Listener) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dropConn()
}

func (l *Listener) connect(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		conn.Release()
		return fmt.Errorf("listening on %q: %w", l.channel, err)
	}
	l.conn = conn
	l.connected.Store(true)
	l.lg.Info("Listening for notifications", zap.String("channel", l.channel))
	return nil
}

// dropConn closes the underlying connection so the pool does not hand out a
// connection that is still subscribed.
func (l *Listener) dropConn() {
	if l.conn == nil {
		return
	}
	_ = l.conn.Conn().Close(context.Background())
	l.conn.Release()
	l.conn = nil
	l.connected.Store(false)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
