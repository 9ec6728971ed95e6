package models

import (
	"time"

	"github.com/google/uuid"
)

type IndexingStatus string

const (
	IndexingNotStarted IndexingStatus = "not_started"
	IndexingRunning    IndexingStatus = "running"
	IndexingCompleted  IndexingStatus = "completed"
	IndexingFailed     IndexingStatus = "failed"
)

// Event is a photographer's event, backed by one source-storage folder.
type Event struct {
	ID                  uuid.UUID      `json:"id" db:"id"`
	Name                string         `json:"name" db:"name"`
	Folder              string         `json:"folder" db:"folder"`
	IndexingStatus      IndexingStatus `json:"indexing_status" db:"indexing_status"`
	IndexedPhotos       int            `json:"indexed_photos" db:"indexed_photos"`
	TotalFaces          int            `json:"total_faces" db:"total_faces"`
	AutoSyncEnabled     bool           `json:"auto_sync_enabled" db:"auto_sync_enabled"`
	SyncIntervalMinutes int            `json:"sync_interval_minutes" db:"sync_interval_minutes"`
	LastSyncAt          *time.Time     `json:"last_sync_at,omitempty" db:"last_sync_at"`
	ChangeCursor        string         `json:"-" db:"change_cursor"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`
}
