package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"story-engine/internal/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAcknowledger записывает исход доставки вместо реального канала.
type fakeAcknowledger struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

// fakeLedger реализует service.LedgerService для консьюмера.
type fakeLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	err      error
}

func (f *fakeLedger) Credit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if amount <= 0 {
		return 0, models.ErrInvalidInput
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances == nil {
		f.balances = make(map[uuid.UUID]int)
	}
	f.balances[userID] += amount
	return f.balances[userID], nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func deliverOne(t *testing.T, ledger *fakeLedger, body []byte) *fakeAcknowledger {
	t.Helper()
	consumer := &CreditConsumer{
		ledger: ledger,
		logger: zap.NewNop(),
		done:   make(chan error, 1),
	}

	ack := &fakeAcknowledger{}
	deliveries := make(chan amqp091.Delivery, 1)
	deliveries <- amqp091.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
	}
	close(deliveries)

	consumer.handleDeliveries(deliveries)
	return ack
}

func TestCreditConsumer_HandleDeliveries(t *testing.T) {
	userID := uuid.New()

	t.Run("valid top-up is credited and acked", func(t *testing.T) {
		ledger := &fakeLedger{}
		body, err := json.Marshal(BalanceTopUpPayload{UserID: userID, Amount: 100, PaymentID: "pay_123"})
		require.NoError(t, err)

		ack := deliverOne(t, ledger, body)

		assert.True(t, ack.acked)
		assert.False(t, ack.nacked)
		balance, _ := ledger.GetBalance(context.Background(), userID)
		assert.Equal(t, 100, balance)
	})

	t.Run("malformed message is rejected without requeue", func(t *testing.T) {
		ack := deliverOne(t, &fakeLedger{}, []byte("{not json"))

		assert.False(t, ack.acked)
		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue, "a broken message never parses, requeue would loop forever")
	})

	t.Run("non-positive amount is a producer bug, no requeue", func(t *testing.T) {
		body, err := json.Marshal(BalanceTopUpPayload{UserID: userID, Amount: 0})
		require.NoError(t, err)

		ack := deliverOne(t, &fakeLedger{}, body)

		assert.True(t, ack.nacked)
		assert.False(t, ack.requeue)
	})

	t.Run("transient store failure is requeued", func(t *testing.T) {
		body, err := json.Marshal(BalanceTopUpPayload{UserID: userID, Amount: 100})
		require.NoError(t, err)

		ack := deliverOne(t, &fakeLedger{err: assert.AnError}, body)

		assert.True(t, ack.nacked)
		assert.True(t, ack.requeue)
	})
}
