package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"aichat/internal/model"
	"aichat/internal/repository"
)

// UsageWorker drains the token-usage queue and writes accounting rows.
// Usage recording is off the request path so a slow insert never delays a
// stream.
type UsageWorker struct {
	conn      *amqp.Connection
	repo      *repository.UsageRecordRepository
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUsageWorker(conn *amqp.Connection, repo *repository.UsageRecordRepository, queueName string) *UsageWorker {
	return &UsageWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    slog.Default(),
	}
}

func (w *UsageWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var record model.UsageRecord
				if err := json.Unmarshal(d.Body, &record); err != nil {
					w.logger.Error("decode usage record failed", "error", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.repo.Create(&record); err != nil {
					w.logger.Error("persist usage record failed",
						"conversation_id", record.ConversationID, "error", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *UsageWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
