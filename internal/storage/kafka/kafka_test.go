package kafka

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
)

// --- Mock implementations ---

type fakeReader struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeOrders struct {
	created []*order.Order
	err     error
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, o)
	return nil
}

func (f *fakeOrders) ListByUser(context.Context, string) ([]order.Order, error) {
	return []order.Order{{ID: "o1"}}, nil
}

// --- Helpers ---

func newTestPublisher(next order.Repository, w messageWriter) *PublishingOrders {
	p := NewPublishingOrders(next, []string{"localhost:9092"}, "order-inserts", nil)
	p.writer = w
	return p
}

func testOrder() *order.Order {
	return &order.Order{
		ID:           "7f9c2b1e-0000-4000-8000-000000000001",
		CustomerName: "Ana Cruz",
		Status:       order.StatusPending,
		TotalAmount:  decimal.RequireFromString("45000.5"),
	}
}

// --- Tests ---

func TestFeed_Next(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{{Value: []byte(`{"id":"o1"}`)}}}
	f := &Feed{reader: r}

	p, err := f.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":"o1"}`, string(p))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, f.Close())
	assert.True(t, r.closed)
}

func TestEncodeInsert_DecodesInRelay(t *testing.T) {
	ev, err := relay.Decode(EncodeInsert(testOrder()))

	require.NoError(t, err)
	assert.Equal(t, relay.Event{ID: testOrder().ID, Status: "Pending", CustomerName: "Ana Cruz"}, ev)
	assert.JSONEq(t,
		`{"id":"7f9c2b1e-0000-4000-8000-000000000001","status":"Pending","customer_name":"Ana Cruz","total_amount":"45000.50"}`,
		string(EncodeInsert(testOrder())),
	)
}

func TestPublishingOrders_Create(t *testing.T) {
	next := &fakeOrders{}
	w := &fakeWriter{}
	p := newTestPublisher(next, w)

	require.NoError(t, p.Create(context.Background(), testOrder()))

	require.Len(t, next.created, 1)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, testOrder().ID, string(w.msgs[0].Key))
}

func TestPublishingOrders_CreateFailureIsNotPublished(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(&fakeOrders{err: errors.New("insert failed")}, w)

	require.Error(t, p.Create(context.Background(), testOrder()))
	assert.Empty(t, w.msgs)
}

func TestPublishingOrders_PublishFailureKeepsOrder(t *testing.T) {
	next := &fakeOrders{}
	p := newTestPublisher(next, &fakeWriter{err: errors.New("broker down")})

	require.NoError(t, p.Create(context.Background(), testOrder()))
	assert.Len(t, next.created, 1)

	list, err := p.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
