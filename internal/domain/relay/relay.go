// Package relay turns order insert events from a change feed into in-app
// notifications and toasts.
//
// A Subscription is an explicit handle: it delivers events until Close is
// called or the feed fails, and Close waits for delivery to stop.
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/notify"
)

// ErrClosed is returned by Feed.Next once the feed is closed.
var ErrClosed = errors.New("feed closed")

// Feed delivers raw insert payloads in the order the source produced them.
type Feed interface {
	// Next blocks until a payload is available or ctx is done.
	Next(ctx context.Context) ([]byte, error)
}

// Pusher receives relayed notifications.
type Pusher interface {
	Push(n notify.Notification) notify.Notification
}

// Sink is where a Subscription delivers events.
type Sink struct {
	Notifications Pusher
	Toaster       notify.Toaster
}

// Options configure a Subscription. Every field is optional.
type Options struct {
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Subscription delivers feed events to a sink until closed.
type Subscription struct {
	feed    Feed
	sink    Sink
	lg      *zap.Logger
	tracer  trace.Tracer
	relayed metric.Int64Counter
	now     func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe starts delivering events from feed to sink. The subscription
// ends when ctx is done, Close is called, or the feed returns an error.
func Subscribe(ctx context.Context, feed Feed, sink Sink, opts Options) (*Subscription, error) {
	if sink.Notifications == nil {
		return nil, errors.New("sink has no notification list")
	}
	if sink.Toaster == nil {
		sink.Toaster = notify.Discard
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	relayed, err := mp.Meter("relay").Int64Counter("relay.notifications",
		metric.WithDescription("Order insert events relayed to a session"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create relayed counter")
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		feed:    feed,
		sink:    sink,
		lg:      lg,
		tracer:  tp.Tracer("relay"),
		relayed: relayed,
		now:     now,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

// Close stops delivery and waits for the delivery goroutine. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when delivery has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err is the feed error that ended the subscription, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)

	for {
		payload, err := s.feed.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.lg.Warn("Change feed failed", zap.Error(err))
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		s.deliver(ctx, payload)
	}
}

func (s *Subscription) deliver(ctx context.Context, payload []byte) {
	_, span := s.tracer.Start(ctx, "relay.deliver")
	defer span.End()

	ev, err := Decode(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		s.lg.Warn("Skipping undecodable order event", zap.Error(err), zap.ByteString("payload", payload))
		return
	}
	span.SetAttributes(attribute.String("order.id", ev.ID))

	s.sink.Notifications.Push(notify.Notification{
		OrderID:   ev.ID,
		Status:    ev.Status,
		Message:   fmt.Sprintf("New order from %s", ev.CustomerName),
		Type:      notify.TypeNewOrder,
		Timestamp: s.now(),
	})
	s.sink.Toaster.Toast(notify.Toast{
		Title:       "New Order Received!",
		Description: fmt.Sprintf("Order #%s has just been placed.", ev.ID),
		Variant:     notify.VariantDefault,
	})
	s.relayed.Add(ctx, 1)
}
