// Package service implements the face finder operations on top of the
// stores, the extractor, the result cache and the task queue.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/your-org/facefind/internal/cache"
	"github.com/your-org/facefind/internal/config"
	"github.com/your-org/facefind/internal/models"
	"github.com/your-org/facefind/internal/observability"
	"github.com/your-org/facefind/internal/similarity"
	"github.com/your-org/facefind/internal/storage"
	"github.com/your-org/facefind/internal/vision"
)

// ErrInvalidInput marks a request the caller must fix.
var ErrInvalidInput = errors.New("invalid input")

// Reasons attached to an empty result.
const (
	ReasonNoFaceDetected = "no_face_detected"
	ReasonNoMatches      = "no_matches"
	ReasonNoDuplicates   = "no_duplicates"
)

// Publisher sends extraction tasks and notifications. Implemented by
// queue.Producer and queue.Local.
type Publisher interface {
	PublishFileTask(ctx context.Context, task models.FileTask) error
	PublishNotification(ctx context.Context, n models.Notification) error
}

type Deps struct {
	Store     storage.Store
	Objects   storage.ObjectStore
	Extractor vision.Extractor
	Cache     cache.ResultCache
	Publisher Publisher
}

type Options struct {
	MatchThreshold float64
	MatchTimeout   time.Duration
	ChunkSize      int
	Duplicates     similarity.DetectorOptions
}

// OptionsFromConfig maps the matching and storage sections onto Options.
func OptionsFromConfig(m config.MatchingConfig, s config.StorageConfig) Options {
	return Options{
		MatchThreshold: m.MatchThreshold,
		MatchTimeout:   m.MatchTimeout,
		ChunkSize:      s.ChunkSize,
		Duplicates: similarity.DetectorOptions{
			Threshold:      m.DuplicateThreshold,
			Grouping:       similarity.Grouping(m.Grouping),
			HashDuplicates: m.HashDuplicatesEnabled(),
			Timeout:        m.DedupTimeout,
		},
	}
}

type Service struct {
	store     storage.Store
	objects   storage.ObjectStore
	extractor vision.Extractor
	cache     cache.ResultCache
	publisher Publisher

	matcher  *similarity.Matcher
	detector *similarity.DuplicateDetector
	opts     Options
}

func New(deps Deps, opts Options) *Service {
	if opts.MatchThreshold == 0 {
		opts.MatchThreshold = similarity.DefaultMatchThreshold
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	return &Service{
		store:     deps.Store,
		objects:   deps.Objects,
		extractor: deps.Extractor,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		matcher:   similarity.NewMatcher(deps.Store, opts.MatchTimeout),
		detector:  similarity.NewDuplicateDetector(deps.Store, opts.Duplicates),
		opts:      opts,
	}
}

// authorize lets a caller act on records it uploaded. An empty caller is the
// operator (facectl) and may act on anything.
func authorize(caller, uploader string) error {
	if caller != "" && caller != uploader {
		return models.ErrUnauthorized
	}
	return nil
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishNotification(ctx, n); err != nil {
		slog.Warn("publish notification", "type", n.Type, "scope", n.Scope, "error", err)
	}
}

// extract runs the extractor and downgrades extraction failures to zero
// faces. Only context errors are returned.
func (s *Service) extract(ctx context.Context, owner models.Owner, data []byte) ([][]float32, error) {
	vectors, err := s.extractor.Extract(ctx, data)
	if err == nil {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	reason := "model"
	if errors.Is(err, vision.ErrUnreadableImage) {
		reason = "unreadable"
	}
	observability.ExtractionFailures.WithLabelValues(reason).Inc()
	slog.Warn("extraction failed, treating as no face detected", "owner", owner.String(), "error", err)
	return nil, nil
}
