package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// SweepOrphans removes stored objects whose face or file record no longer
// exists and returns how many objects were deleted. Records are created
// before their objects and objects are listed before records, so an upload
// in flight is never swept.
func (s *Service) SweepOrphans(ctx context.Context) (int, error) {
	prefixes, err := s.objects.ListPrefixes(ctx, "files/")
	if err != nil {
		return 0, fmt.Errorf("list file prefixes: %w", err)
	}
	faces, err := s.objects.ListObjects(ctx, "faces/")
	if err != nil {
		return 0, fmt.Errorf("list face objects: %w", err)
	}

	keys, err := s.store.ContentKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list content keys: %w", err)
	}
	live := make(map[string]bool, len(keys))
	for _, k := range keys {
		live[k] = true
	}

	var orphans []string
	for _, p := range prefixes {
		if live[strings.TrimSuffix(p, "/")] {
			continue
		}
		objs, err := s.objects.ListObjects(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("list objects under %s: %w", p, err)
		}
		orphans = append(orphans, objs...)
	}
	for _, k := range faces {
		if !live[k] {
			orphans = append(orphans, k)
		}
	}

	if len(orphans) == 0 {
		return 0, nil
	}
	if err := s.objects.DeleteObjects(ctx, orphans); err != nil {
		return 0, fmt.Errorf("delete orphans: %w", err)
	}
	slog.Info("orphan sweep removed objects", "count", len(orphans))
	return len(orphans), nil
}
