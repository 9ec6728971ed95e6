// Package dto defines the API's request and response shapes.
package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateEventRequest struct {
	Name   string `json:"name" binding:"required"`
	Folder string `json:"folder" binding:"required"`
}

type EventResponse struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	Folder              string     `json:"folder"`
	IndexingStatus      string     `json:"indexing_status"`
	IndexedPhotos       int        `json:"indexed_photos"`
	TotalFaces          int        `json:"total_faces"`
	AutoSyncEnabled     bool       `json:"auto_sync_enabled"`
	SyncIntervalMinutes int        `json:"sync_interval_minutes"`
	LastSyncAt          *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type StartIndexingResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

type ItemFailure struct {
	PhotoID   string `json:"photo_id"`
	PhotoName string `json:"photo_name"`
	Reason    string `json:"reason"`
}

type TaskResponse struct {
	ID           uuid.UUID     `json:"id"`
	EventID      uuid.UUID     `json:"event_id"`
	Status       string        `json:"status"`
	Progress     int           `json:"progress"`
	Total        int           `json:"total"`
	CurrentItem  string        `json:"current_item,omitempty"`
	FacesFound   int           `json:"faces_found"`
	ItemFailures []ItemFailure `json:"item_failures,omitempty"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

type SearchMatch struct {
	PhotoID   string  `json:"photo_id"`
	PhotoName string  `json:"photo_name"`
	Distance  float64 `json:"distance"`
}

type SearchResponse struct {
	EventID   uuid.UUID     `json:"event_id"`
	Queries   int           `json:"queries"`
	Tolerance float64       `json:"tolerance"`
	Matches   []SearchMatch `json:"matches"`
}

type EnableSyncRequest struct {
	IntervalMinutes int `json:"interval_minutes"`
}

type SyncStatusResponse struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	LoopRunning     bool       `json:"loop_running"`
}

// WSTaskEvent is the websocket frame broadcast on task progress.
type WSTaskEvent struct {
	Type    string     `json:"type"`
	EventID uuid.UUID  `json:"event_id"`
	Task    TaskParcel `json:"task"`
}

// TaskParcel mirrors the fields subscribers care about.
type TaskParcel struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Total      int       `json:"total"`
	FacesFound int       `json:"faces_found"`
	Error      string    `json:"error,omitempty"`
}
