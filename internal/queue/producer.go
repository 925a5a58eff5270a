package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/visitrack/internal/models"
)

const (
	RunsStreamName      = "RUNS"
	RunsSubjectBase     = "runs"
	ProgressStreamName  = "PROGRESS"
	ProgressSubjectBase = "progress"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        RunsStreamName,
			Subjects:    []string{RunsSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  10 * time.Minute,
			Description: "Batch matching run tasks",
		},
		{
			Name:        ProgressStreamName,
			Subjects:    []string{ProgressSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "Run progress events",
		},
	}
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streamConfigs() {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

func RunSubject(venueID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", RunsSubjectBase, venueID)
}

func ProgressSubject(runID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", ProgressSubjectBase, runID)
}

// PublishRun enqueues a run task. The run id doubles as the message id so
// a retried trigger is deduplicated by the stream.
func (p *Producer) PublishRun(ctx context.Context, task models.RunTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal run task: %w", err)
	}

	_, err = p.js.Publish(ctx, RunSubject(task.VenueID), payload, jetstream.WithMsgID(task.RunID.String()))
	if err != nil {
		return fmt.Errorf("publish run task: %w", err)
	}
	return nil
}

func (p *Producer) PublishProgress(ctx context.Context, ev models.RunProgress) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal run progress: %w", err)
	}

	_, err = p.js.Publish(ctx, ProgressSubject(ev.RunID), payload)
	if err != nil {
		return fmt.Errorf("publish run progress: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the RUNS stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, RunsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
