package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/visitrack/internal/models"
)

// RunAckWait bounds a single run attempt before JetStream redelivers it.
// Handlers extend it with InProgress while they work.
const RunAckWait = 10 * time.Minute

// ErrPermanent marks a message that must not be redelivered.
var ErrPermanent = errors.New("permanent failure")

type MessageHandler func(ctx context.Context, msg jetstream.Msg) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// settle acks, naks or terminates msg according to the handler result.
func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrPermanent):
		_ = msg.Term()
	default:
		_ = msg.NakWithDelay(5 * time.Second)
	}
}

// DecodeRunTask parses a RUNS message body.
func DecodeRunTask(data []byte) (models.RunTask, error) {
	var task models.RunTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("%w: decode run task: %v", ErrPermanent, err)
	}
	if task.RunID == uuid.Nil || task.VenueID == uuid.Nil {
		return task, fmt.Errorf("%w: run task without run or venue id", ErrPermanent)
	}
	return task, nil
}

// ConsumeRuns starts consuming run tasks from the RUNS stream.
// workerCount determines how many runs execute concurrently.
func (c *Consumer) ConsumeRuns(ctx context.Context, consumerName string, handler MessageHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, RunsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", RunsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       RunAckWait,
		MaxDeliver:    3,
		FilterSubject: RunsSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount)

	go func() {
		defer close(msgCh)
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch run tasks error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(workerID int) {
			for msg := range msgCh {
				err := handler(ctx, msg)
				if err != nil {
					slog.Error("process run task error", "worker", workerID, "error", err, "subject", msg.Subject())
				}
				settle(msg, err)
			}
		}(i)
	}

	slog.Info("run consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeProgress starts consuming run progress events (for API to broadcast via WebSocket).
func (c *Consumer) ConsumeProgress(ctx context.Context, consumerName string, handler MessageHandler) error {
	stream, err := c.js.Stream(ctx, ProgressStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", ProgressStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: ProgressSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				err := handler(ctx, msg)
				if err != nil {
					slog.Error("process progress event error", "error", err)
				}
				settle(msg, err)
			}
		}
	}()

	slog.Info("progress consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
