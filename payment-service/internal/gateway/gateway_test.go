package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mikro-shop/fulfillment/pkg/events"
	"github.com/mikro-shop/fulfillment/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockStatus struct {
	s string
}

func (m *mockStatus) Status() string { return m.s }

type MockConsumer struct {
	messages chan kafka.Message
	Closed   bool
}

func NewMockConsumer(msgs ...kafka.Message) *MockConsumer {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &MockConsumer{messages: ch}
}

func (m *MockConsumer) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-m.messages:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (m *MockConsumer) Close() error {
	m.Closed = true
	return nil
}

type MockProducer struct {
	Messages chan kafka.Message
	Err      error
	Closed   bool
}

func NewMockProducer() *MockProducer {
	return &MockProducer{Messages: make(chan kafka.Message, 16)}
}

func (m *MockProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.Err != nil {
		return m.Err
	}
	for _, msg := range msgs {
		m.Messages <- msg
	}
	return nil
}

func (m *MockProducer) Close() error {
	m.Closed = true
	return nil
}

func requestMessage(t *testing.T, orderID int64, amount string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(events.PaymentRequest{OrderID: orderID, Amount: decimal.RequireFromString(amount)})
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestCalcStatus(t *testing.T) {
	tests := []struct {
		name string
		v    int
		want string
	}{
		{name: "lowest", v: 0, want: events.PaymentStatusPaid},
		{name: "success", v: 10, want: events.PaymentStatusPaid},
		{name: "last paid", v: 89, want: events.PaymentStatusPaid},
		{name: "first failed", v: 90, want: events.PaymentStatusFailed},
		{name: "highest", v: 99, want: events.PaymentStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calcStatus(tt.v))
		})
	}
}

func TestRandomStatus_OnlyKnownOutcomes(t *testing.T) {
	var s RandomStatus
	for i := 0; i < 200; i++ {
		assert.Contains(t, []string{events.PaymentStatusPaid, events.PaymentStatusFailed}, s.Status())
	}
}

func TestSettle_PublishesResultKeyedByOrder(t *testing.T) {
	producer := NewMockProducer()
	g := NewGateway(NewMockConsumer(), producer, &mockStatus{s: events.PaymentStatusPaid}, zap.NewNop())
	before := testutil.ToFloat64(metrics.PaymentsSettled.WithLabelValues(events.PaymentStatusPaid))

	require.NoError(t, g.settle(context.Background(), requestMessage(t, 42, "100.00")))

	require.Len(t, producer.Messages, 1)
	msg := <-producer.Messages
	assert.Equal(t, "42", string(msg.Key))
	assert.JSONEq(t, `{"orderId":42,"status":"PAID"}`, string(msg.Value))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PaymentsSettled.WithLabelValues(events.PaymentStatusPaid)))
}

func TestSettle_MalformedRequestIsDropped(t *testing.T) {
	producer := NewMockProducer()
	g := NewGateway(NewMockConsumer(), producer, &mockStatus{s: events.PaymentStatusPaid}, zap.NewNop())

	require.NoError(t, g.settle(context.Background(), kafka.Message{Value: []byte("nope")}))
	assert.Empty(t, producer.Messages)
}

func TestSettle_PublishFailure(t *testing.T) {
	producer := NewMockProducer()
	producer.Err = errors.New("broker unreachable")
	g := NewGateway(NewMockConsumer(), producer, &mockStatus{s: events.PaymentStatusFailed}, zap.NewNop())
	before := testutil.ToFloat64(metrics.PublishFailures.WithLabelValues(events.TopicPaymentResults))

	err := g.settle(context.Background(), requestMessage(t, 7, "1.00"))

	assert.ErrorContains(t, err, "broker unreachable")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.PublishFailures.WithLabelValues(events.TopicPaymentResults)))
}

func TestRun_SettlesUntilCancelled(t *testing.T) {
	consumer := NewMockConsumer(requestMessage(t, 1, "5.00"), requestMessage(t, 2, "6.00"))
	producer := NewMockProducer()
	g := NewGateway(consumer, producer, &mockStatus{s: events.PaymentStatusFailed}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	var seen []int64
	for len(seen) < 2 {
		select {
		case msg := <-producer.Messages:
			var res events.PaymentResult
			require.NoError(t, json.Unmarshal(msg.Value, &res))
			assert.Equal(t, events.PaymentStatusFailed, res.Status)
			seen = append(seen, res.OrderID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	assert.ElementsMatch(t, []int64{1, 2}, seen)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gateway did not stop")
	}
	g.Close()
	assert.True(t, consumer.Closed)
	assert.True(t, producer.Closed)
}

func TestOpsRouter(t *testing.T) {
	srv := httptest.NewServer(NewOpsRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
