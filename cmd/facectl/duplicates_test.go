package main

import (
	"slices"
	"testing"

	"github.com/your-org/facefind/internal/models"
)

func TestRedundant(t *testing.T) {
	tests := []struct {
		name   string
		groups []models.DuplicateGroup
		want   []int64
	}{
		{
			name:   "single pair keeps lowest",
			groups: []models.DuplicateGroup{{FileIDs: []int64{9, 4}}},
			want:   []int64{9},
		},
		{
			name: "overlapping pairs never delete a kept file",
			groups: []models.DuplicateGroup{
				{FileIDs: []int64{1, 2}},
				{FileIDs: []int64{2, 3}},
			},
			want: []int64{3},
		},
		{
			name: "cluster",
			groups: []models.DuplicateGroup{
				{FileIDs: []int64{5, 6, 7}},
			},
			want: []int64{6, 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redundant(tt.groups)
			if !slices.Equal(got, tt.want) {
				t.Errorf("redundant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJoinIDs(t *testing.T) {
	if got := joinIDs([]int64{3, 10, 42}); got != "3,10,42" {
		t.Errorf("joinIDs = %q", got)
	}
	if got := joinIDs(nil); got != "" {
		t.Errorf("joinIDs(nil) = %q", got)
	}
}
