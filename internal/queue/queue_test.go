package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/facefind/internal/models"
)

func TestSubjects(t *testing.T) {
	if got := FileSubject(42); got != "files.42" {
		t.Errorf("FileSubject = %q", got)
	}
	if got := NotifySubject(models.NotifyMatchFound); got != "notify.match_found" {
		t.Errorf("NotifySubject = %q", got)
	}
}

func TestDecodeFileTask(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int64
		wantErr bool
	}{
		{"valid", `{"file_id":7,"scope":"ev"}`, 7, false},
		{"bad json", `{"file_id":`, 0, true},
		{"missing id", `{"scope":"ev"}`, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task, err := decodeFileTask([]byte(tc.data))
			if tc.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if task.FileID != tc.want || task.Scope != "ev" {
				t.Errorf("decoded %+v", task)
			}
		})
	}
}

func TestDecodeNotification(t *testing.T) {
	n, err := decodeNotification([]byte(`{"type":"file_processed","scope":"ev","file_id":3}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n.Type != models.NotifyFileProcessed || n.FileID != 3 {
		t.Errorf("decoded %+v", n)
	}
	if _, err := decodeNotification([]byte(`{"scope":"ev"}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing type, got %v", err)
	}
}

func TestLocal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("RetriesUntilSuccess", func(t *testing.T) {
		l := NewLocal(4)
		attempts := make(chan int, maxDeliver)
		l.ConsumeFiles(ctx, func(ctx context.Context, task models.FileTask) error {
			attempts <- task.Attempt
			if task.Attempt < 2 {
				return errors.New("transient")
			}
			return nil
		}, 1)

		if err := l.PublishFileTask(ctx, models.FileTask{FileID: 1}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		for want := 1; want <= 2; want++ {
			select {
			case got := <-attempts:
				if got != want {
					t.Errorf("attempt = %d; want %d", got, want)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for attempt %d", want)
			}
		}
		select {
		case got := <-attempts:
			t.Errorf("unexpected extra attempt %d", got)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("GivesUpAfterMaxDeliver", func(t *testing.T) {
		l := NewLocal(4)
		var calls atomic.Int32
		done := make(chan struct{})
		l.ConsumeFiles(ctx, func(ctx context.Context, task models.FileTask) error {
			if calls.Add(1) == maxDeliver {
				close(done)
			}
			return errors.New("always fails")
		}, 1)
		_ = l.PublishFileTask(ctx, models.FileTask{FileID: 2})

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
		time.Sleep(50 * time.Millisecond)
		if got := calls.Load(); got != maxDeliver {
			t.Errorf("handler called %d times; want %d", got, maxDeliver)
		}
	})

	t.Run("Notifications", func(t *testing.T) {
		l := NewLocal(1)
		var got []string
		l.Subscribe(func(ctx context.Context, n models.Notification) error {
			got = append(got, n.Type)
			return nil
		})
		_ = l.PublishNotification(ctx, models.Notification{Type: models.NotifyFileProcessed})
		if len(got) != 1 || got[0] != models.NotifyFileProcessed {
			t.Errorf("subscriber got %v", got)
		}
	})

	t.Run("PublishHonoursContext", func(t *testing.T) {
		l := NewLocal(1)
		_ = l.PublishFileTask(ctx, models.FileTask{FileID: 1})
		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		if err := l.PublishFileTask(short, models.FileTask{FileID: 2}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded on full buffer, got %v", err)
		}
		if depth, _ := l.QueueDepth(ctx); depth != 1 {
			t.Errorf("depth = %d; want 1", depth)
		}
	})
}
