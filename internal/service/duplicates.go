package service

import (
	"context"
	"fmt"

	"github.com/your-org/facefind/internal/models"
)

// DuplicateResult lists duplicate groups. Reason is set when Groups is empty.
type DuplicateResult struct {
	Groups []models.DuplicateGroup
	Reason string
}

// FindDuplicates scans the files matching filter for near-identical uploads.
func (s *Service) FindDuplicates(ctx context.Context, filter models.FileFilter) (*DuplicateResult, error) {
	groups, err := s.detector.FindDuplicates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find duplicates: %w", err)
	}
	res := &DuplicateResult{Groups: groups}
	if len(groups) == 0 {
		res.Groups = []models.DuplicateGroup{}
		res.Reason = ReasonNoDuplicates
	}
	return res, nil
}

// DeleteDuplicates removes the chosen members of duplicate groups. It has
// the same semantics as DeleteFiles.
func (s *Service) DeleteDuplicates(ctx context.Context, caller string, ids []int64) ([]int64, error) {
	return s.DeleteFiles(ctx, caller, ids)
}
