package models

import "testing"

func TestParseOwner(t *testing.T) {
	tests := []struct {
		in      string
		want    Owner
		wantErr bool
	}{
		{"face:12", FaceOwner(12), false},
		{"file:7", FileOwner(7), false},
		{"file", Owner{}, true},
		{"file:abc", Owner{}, true},
		{"file:0", Owner{}, true},
		{"person:3", Owner{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseOwner(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ParseOwner(%q) expected error, got %v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOwner(%q) failed: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParseOwner(%q) = %v; want %v", tc.in, got, tc.want)
			}
			if got.String() != tc.in {
				t.Errorf("String() = %q; want %q", got.String(), tc.in)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to EmbeddingStatus
		allowed  bool
	}{
		{StatusUploaded, StatusEmbeddingPending, true},
		{StatusUploaded, StatusEmbeddingAttached, false},
		{StatusEmbeddingPending, StatusEmbeddingAttached, true},
		{StatusEmbeddingPending, StatusNoFaceDetected, true},
		{StatusEmbeddingAttached, StatusEmbeddingPending, true},
		{StatusNoFaceDetected, StatusEmbeddingAttached, false},
		{StatusEmbeddingAttached, StatusDeleted, true},
		{StatusDeleted, StatusEmbeddingPending, false},
		{StatusDeleted, StatusUploaded, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := tc.from.CanTransition(tc.to); got != tc.allowed {
				t.Errorf("CanTransition = %v; want %v", got, tc.allowed)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusEmbeddingPending.Terminal() {
		t.Error("pending must not be terminal")
	}
	if !StatusNoFaceDetected.Terminal() || !StatusEmbeddingAttached.Terminal() {
		t.Error("attached and no_face_detected must be terminal")
	}
	if EmbeddingStatus("bogus").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestSourcesFor(t *testing.T) {
	got := SourcesFor(StatusEmbeddingAttached)
	if len(got) != 1 || got[0] != StatusEmbeddingPending {
		t.Errorf("SourcesFor(attached) = %v; want [embedding_pending]", got)
	}
	for _, s := range SourcesFor(StatusEmbeddingPending) {
		if s == StatusDeleted {
			t.Error("deleted must not be a source for any transition")
		}
	}
}
