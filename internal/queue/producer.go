package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facefind/internal/models"
)

const (
	FilesStreamName   = "FILES"
	FilesSubjectBase  = "files"
	NotifyStreamName  = "NOTIFY"
	NotifySubjectBase = "notify"
)

// FileSubject is the subject a file's extraction task is published on.
func FileSubject(fileID int64) string {
	return FilesSubjectBase + "." + strconv.FormatInt(fileID, 10)
}

// NotifySubject is the subject for a notification type.
func NotifySubject(kind string) string {
	return NotifySubjectBase + "." + kind
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("facefind"),
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

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// JetStream exposes the context for key-value buckets.
func (p *Producer) JetStream() jetstream.JetStream { return p.js }

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        FilesStreamName,
			Subjects:    []string{FilesSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  2 * time.Minute,
			Description: "Embedding extraction tasks for uploaded files",
		},
		{
			Name:        NotifyStreamName,
			Subjects:    []string{NotifySubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Description: "File processed and match notifications",
		},
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
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

// PublishFileTask enqueues extraction for one file. The message id makes a
// repeated publish of the same task a no-op inside the dedup window.
func (p *Producer) PublishFileTask(ctx context.Context, task models.FileTask) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal file task: %w", err)
	}

	msgID := fmt.Sprintf("file-%d-%d", task.FileID, task.EnqueuedAt.UnixNano())
	if _, err := p.js.Publish(ctx, FileSubject(task.FileID), payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish file task %d: %w", task.FileID, err)
	}
	return nil
}

// PublishNotification publishes a notification for WebSocket fan-out.
func (p *Producer) PublishNotification(ctx context.Context, n models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := p.js.Publish(ctx, NotifySubject(n.Type), payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending messages in the FILES stream.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, FilesStreamName)
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
