package models

// EmbeddingStatus is the lifecycle state of a FileRecord's embeddings.
type EmbeddingStatus string

const (
	StatusUploaded          EmbeddingStatus = "uploaded"
	StatusEmbeddingPending  EmbeddingStatus = "embedding_pending"
	StatusEmbeddingAttached EmbeddingStatus = "embedding_attached"
	StatusNoFaceDetected    EmbeddingStatus = "no_face_detected"
	StatusDeleted           EmbeddingStatus = "deleted"
)

var transitions = map[EmbeddingStatus][]EmbeddingStatus{
	StatusUploaded:          {StatusEmbeddingPending, StatusDeleted},
	StatusEmbeddingPending:  {StatusEmbeddingPending, StatusEmbeddingAttached, StatusNoFaceDetected, StatusDeleted},
	StatusEmbeddingAttached: {StatusEmbeddingPending, StatusDeleted},
	StatusNoFaceDetected:    {StatusEmbeddingPending, StatusDeleted},
}

// CanTransition reports whether a file may move from s to next.
// Nothing leaves StatusDeleted.
func (s EmbeddingStatus) CanTransition(next EmbeddingStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether extraction has finished for this status.
func (s EmbeddingStatus) Terminal() bool {
	return s == StatusEmbeddingAttached || s == StatusNoFaceDetected || s == StatusDeleted
}

func (s EmbeddingStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusEmbeddingPending, StatusEmbeddingAttached, StatusNoFaceDetected, StatusDeleted:
		return true
	}
	return false
}

// SourcesFor lists every status that may move to next, for conditional updates.
func SourcesFor(next EmbeddingStatus) []EmbeddingStatus {
	var out []EmbeddingStatus
	for _, s := range []EmbeddingStatus{StatusUploaded, StatusEmbeddingPending, StatusEmbeddingAttached, StatusNoFaceDetected, StatusDeleted} {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}
