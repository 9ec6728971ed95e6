package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceRecord is one detected face in one event photo. Immutable once written;
// a photo with several faces produces several records.
type FaceRecord struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	EventID   uuid.UUID  `json:"event_id" db:"event_id"`
	PhotoID   string     `json:"photo_id" db:"photo_id"`
	PhotoName string     `json:"photo_name" db:"photo_name"`
	Embedding []float32  `json:"-" db:"embedding"`
	Box       [4]float32 `json:"box" db:"box"` // x1, y1, x2, y2
	IndexedAt time.Time  `json:"indexed_at" db:"indexed_at"`
}

// Checkpoint marks one photo as fully processed within an indexing run.
// At most one checkpoint exists per (event, photo); a run resumes by skipping
// checkpointed photos and all checkpoints are cleared once the run completes.
type Checkpoint struct {
	EventID     uuid.UUID `json:"event_id" db:"event_id"`
	PhotoID     string    `json:"photo_id" db:"photo_id"`
	PhotoName   string    `json:"photo_name" db:"photo_name"`
	FacesFound  int       `json:"faces_found" db:"faces_found"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}
