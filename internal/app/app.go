// Package app wires the stores, queue, cache, vision models and service
// shared by the facefind binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/facefind/internal/cache"
	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/queue"
	"github.com/your-org/facefind/internal/service"
	"github.com/your-org/facefind/internal/storage"
	"github.com/your-org/facefind/internal/vision"
)

type Options struct {
	// Vision loads the ONNX runtime and the extractor handle.
	Vision bool
	// LocalQueue falls back to an in-process queue when no NATS URL is set.
	LocalQueue bool
}

type App struct {
	Config   *config.Config
	Store    storage.Store
	Objects  storage.ObjectStore
	Cache    cache.ResultCache
	Producer *queue.Producer
	Local    *queue.Local
	Vision   *vision.Handle
	Service  *service.Service

	runtime bool
}

// New connects every dependency cfg names. On error, whatever was opened
// is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Store, err = storage.Open(ctx, cfg.Database, cfg.Vision.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Objects, err = storage.OpenObjects(ctx, cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}

	var publisher service.Publisher
	var kv cache.KVFactory
	switch {
	case cfg.NATS.URL != "":
		a.Producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			return nil, err
		}
		if err := a.Producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		publisher = a.Producer
		kv = a.Producer.JetStream()
	case opts.LocalQueue:
		slog.Warn("nats url not set, using in-process queue")
		a.Local = queue.NewLocal(0)
		publisher = a.Local
	}

	a.Cache, err = cache.New(ctx, cfg.Cache, kv)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	var extractor vision.Extractor
	if opts.Vision {
		if err := vision.InitRuntime(cfg.Vision.ONNXLib); err != nil {
			slog.Warn("onnx runtime unavailable, extraction will report no faces", "error", err)
		} else {
			a.runtime = true
		}
		a.Vision = vision.NewHandle(cfg.Vision)
		extractor = a.Vision
	}

	a.Service = service.New(service.Deps{
		Store:     a.Store,
		Objects:   a.Objects,
		Extractor: extractor,
		Cache:     a.Cache,
		Publisher: publisher,
	}, service.OptionsFromConfig(cfg.Matching, cfg.Storage))
	return a, nil
}

// QueueDepth reports pending extraction tasks on whichever queue is in use.
func (a *App) QueueDepth(ctx context.Context) (uint64, error) {
	switch {
	case a.Producer != nil:
		return a.Producer.QueueDepth(ctx)
	case a.Local != nil:
		return a.Local.QueueDepth(ctx)
	default:
		return 0, nil
	}
}

func (a *App) Close() {
	if a.Vision != nil {
		a.Vision.Close()
	}
	if a.runtime {
		vision.DestroyRuntime()
	}
	if a.Producer != nil {
		a.Producer.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			slog.Warn("close store", "error", err)
		}
	}
}
