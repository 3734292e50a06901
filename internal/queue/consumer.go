package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facefind/internal/models"
)

// ErrMalformed marks a payload that can never be processed. Such messages
// are acked and dropped instead of redelivered.
var ErrMalformed = errors.New("malformed message")

type FileTaskHandler func(ctx context.Context, task models.FileTask) error

type NotificationHandler func(ctx context.Context, n models.Notification) error

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

func decodeFileTask(data []byte) (models.FileTask, error) {
	var task models.FileTask
	if err := json.Unmarshal(data, &task); err != nil {
		return task, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if task.FileID <= 0 {
		return task, fmt.Errorf("%w: file id %d", ErrMalformed, task.FileID)
	}
	return task, nil
}

func decodeNotification(data []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.Type == "" {
		return n, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return n, nil
}

// settle acks on success or on a malformed payload and naks otherwise.
func settle(msg jetstream.Msg, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, ErrMalformed):
		slog.Warn("dropping malformed message", "subject", msg.Subject(), "error", err)
		_ = msg.Ack()
	default:
		_ = msg.Nak()
	}
}

// ConsumeFiles starts consuming extraction tasks from the FILES stream.
// workerCount determines how many goroutines process messages concurrently.
func (c *Consumer) ConsumeFiles(ctx context.Context, consumerName string, handler FileTaskHandler, workerCount int) error {
	stream, err := c.js.Stream(ctx, FilesStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", FilesStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       2 * time.Minute,
		MaxDeliver:    3,
		FilterSubject: FilesSubjectBase + ".>",
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg, workerCount*2)

	go func() {
		defer close(msgCh)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(workerCount, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch file tasks error", "error", err)
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
				task, err := decodeFileTask(msg.Data())
				if err == nil {
					if meta, mErr := msg.Metadata(); mErr == nil {
						task.Attempt = int(meta.NumDelivered)
					}
					err = handler(ctx, task)
				}
				if err != nil && !errors.Is(err, ErrMalformed) {
					slog.Error("process file task error", "worker", workerID, "error", err, "subject", msg.Subject())
				}
				settle(msg, err)
			}
		}(i)
	}

	slog.Info("file consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

// ConsumeNotifications starts consuming notifications (for API to broadcast
// via WebSocket). Each API replica should pass its own consumer name.
func (c *Consumer) ConsumeNotifications(ctx context.Context, consumerName string, handler NotificationHandler) error {
	stream, err := c.js.Stream(ctx, NotifyStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", NotifyStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     NotifySubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
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
				n, err := decodeNotification(msg.Data())
				if err == nil {
					err = handler(ctx, n)
				}
				if err != nil && !errors.Is(err, ErrMalformed) {
					slog.Error("process notification error", "error", err)
				}
				settle(msg, err)
			}
		}
	}()

	slog.Info("notification consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
