package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/facefind/internal/models"
)

// Local is the in-process queue used when no NATS URL is configured. It
// mirrors the FILES and NOTIFY semantics for a single node: tasks are
// retried up to maxDeliver times and notifications reach every subscriber.
type Local struct {
	files chan models.FileTask

	mu          sync.RWMutex
	subscribers []NotificationHandler
}

const maxDeliver = 3

func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Local{files: make(chan models.FileTask, buffer)}
}

func (l *Local) PublishFileTask(ctx context.Context, task models.FileTask) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	select {
	case l.files <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) PublishNotification(ctx context.Context, n models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	l.mu.RLock()
	subs := append([]NotificationHandler(nil), l.subscribers...)
	l.mu.RUnlock()

	for _, h := range subs {
		if err := h(ctx, n); err != nil {
			slog.Warn("local notification handler", "type", n.Type, "error", err)
		}
	}
	return nil
}

// Subscribe registers a notification handler.
func (l *Local) Subscribe(h NotificationHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribers = append(l.subscribers, h)
}

// QueueDepth returns the number of buffered file tasks.
func (l *Local) QueueDepth(ctx context.Context) (uint64, error) {
	return uint64(len(l.files)), nil
}

// ConsumeFiles starts workerCount goroutines draining the task buffer until
// ctx is cancelled.
func (l *Local) ConsumeFiles(ctx context.Context, handler FileTaskHandler, workerCount int) {
	for i := 0; i < max(workerCount, 1); i++ {
		go func(workerID int) {
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-l.files:
					l.deliver(ctx, workerID, handler, task)
				}
			}
		}(i)
	}
	slog.Info("local file consumer started", "workers", workerCount)
}

func (l *Local) deliver(ctx context.Context, workerID int, handler FileTaskHandler, task models.FileTask) {
	for attempt := 1; attempt <= maxDeliver; attempt++ {
		task.Attempt = attempt
		err := handler(ctx, task)
		if err == nil || errors.Is(err, ErrMalformed) {
			return
		}
		slog.Error("process file task error", "worker", workerID, "file_id", task.FileID, "attempt", attempt, "error", err)
		if ctx.Err() != nil {
			return
		}
	}
}
