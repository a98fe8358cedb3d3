package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-engine/internal/models"
	"story-engine/internal/service"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// CreditConsumer слушает очередь пополнений и зачисляет подтвержденные
// платежи на баланс. Движок сам никогда не инициирует списание с карты -
// только принимает факт пополнения.
type CreditConsumer struct {
	conn          *amqp091.Connection
	ch            *amqp091.Channel
	ledger        service.LedgerService
	logger        *zap.Logger
	queueName     string
	consumerTag   string
	prefetchCount int
	done          chan error
}

// NewCreditConsumer создает консьюмера пополнений баланса.
func NewCreditConsumer(
	conn *amqp091.Connection,
	ledger service.LedgerService,
	queueName, consumerTag string,
	prefetchCount int,
	logger *zap.Logger,
) (*CreditConsumer, error) {
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("LedgerService is nil")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is empty")
	}
	if consumerTag == "" {
		consumerTag = fmt.Sprintf("balance_credit_consumer_%d", time.Now().UnixNano())
	}
	if prefetchCount <= 0 {
		prefetchCount = 1
	}

	consumer := &CreditConsumer{
		conn:          conn,
		ledger:        ledger,
		logger:        logger.Named("CreditConsumer").With(zap.String("consumerTag", consumerTag), zap.String("queue", queueName)),
		queueName:     queueName,
		consumerTag:   consumerTag,
		prefetchCount: prefetchCount,
		done:          make(chan error),
	}

	if err := consumer.setupChannelAndQueue(); err != nil {
		return nil, fmt.Errorf("failed to setup channel and queue: %w", err)
	}

	consumer.logger.Info("CreditConsumer инициализирован")
	return consumer, nil
}

// setupChannelAndQueue создает канал и объявляет очередь.
func (c *CreditConsumer) setupChannelAndQueue() error {
	var err error
	c.ch, err = c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = c.ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to declare queue '%s': %w", c.queueName, err)
	}

	err = c.ch.Qos(c.prefetchCount, 0, false)
	if err != nil {
		_ = c.ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	return nil
}

// StartConsuming запускает получение и обработку сообщений. Блокирует до
// остановки консьюмера или ошибки канала.
func (c *CreditConsumer) StartConsuming() error {
	if c.ch == nil {
		return fmt.Errorf("channel is not initialized")
	}
	c.logger.Info("Начало прослушивания очереди пополнений баланса...")

	deliveries, err := c.ch.Consume(
		c.queueName,
		c.consumerTag,
		false, // auto-ack: подтверждаем вручную после зачисления
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	go c.handleDeliveries(deliveries)

	go func() {
		notifyClose := make(chan *amqp091.Error)
		c.ch.NotifyClose(notifyClose)
		select {
		case err := <-notifyClose:
			if err != nil {
				c.logger.Error("RabbitMQ channel closed unexpectedly", zap.Error(err))
				c.done <- err
			} else {
				c.done <- nil
			}
		case <-c.done:
		}
	}()

	c.logger.Info("Consumer запущен и ожидает сообщений")
	return <-c.done
}

// handleDeliveries обрабатывает входящие сообщения.
func (c *CreditConsumer) handleDeliveries(deliveries <-chan amqp091.Delivery) {
	for d := range deliveries {
		log := c.logger.With(zap.Uint64("deliveryTag", d.DeliveryTag))

		var payload BalanceTopUpPayload
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			// Битое сообщение не станет лучше от повторной доставки
			log.Error("Не удалось распарсить сообщение пополнения, отклоняем (Nack, no requeue)", zap.Error(err))
			if nackErr := d.Nack(false, false); nackErr != nil {
				log.Error("Ошибка при отклонении (Nack) сообщения", zap.Error(nackErr))
			}
			continue
		}

		log = log.With(
			zap.Stringer("userID", payload.UserID),
			zap.Int("amount", payload.Amount),
			zap.String("paymentID", payload.PaymentID))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newBalance, err := c.ledger.Credit(ctx, payload.UserID, payload.Amount)
		cancel()

		switch {
		case err == nil:
			log.Info("Баланс пополнен", zap.Int("newBalance", newBalance))
			if ackErr := d.Ack(false); ackErr != nil {
				log.Error("Ошибка при подтверждении (Ack) сообщения", zap.Error(ackErr))
			}

		case errors.Is(err, models.ErrInvalidInput):
			// Неположительная сумма - ошибка продьюсера, requeue бессмысленен
			log.Error("Невалидная сумма пополнения, отклоняем (Nack, no requeue)")
			if nackErr := d.Nack(false, false); nackErr != nil {
				log.Error("Ошибка при отклонении (Nack) сообщения", zap.Error(nackErr))
			}

		default:
			// Временная ошибка БД: просим переотправить позже
			log.Error("Ошибка зачисления, сообщение будет переотправлено (Nack, requeue)", zap.Error(err))
			if nackErr := d.Nack(false, true); nackErr != nil {
				log.Error("Ошибка при отклонении (Nack) сообщения", zap.Error(nackErr))
			}
			time.Sleep(1 * time.Second)
		}
	}

	c.logger.Info("Канал deliveries закрыт, обработка сообщений завершена.")
	select {
	case c.done <- nil:
	default:
	}
}

// Stop корректно останавливает консьюмера.
func (c *CreditConsumer) Stop() error {
	if c.ch == nil {
		return nil
	}
	c.logger.Info("Остановка CreditConsumer...")

	if err := c.ch.Cancel(c.consumerTag, false); err != nil {
		c.logger.Error("Ошибка при отмене consumer'а", zap.Error(err))
	}
	if err := c.ch.Close(); err != nil {
		c.logger.Error("Ошибка при закрытии канала RabbitMQ", zap.Error(err))
	}

	select {
	case c.done <- nil:
	default:
	}

	c.logger.Info("CreditConsumer остановлен.")
	return nil
}
