// Package drive abstracts the cloud-storage folder that holds an event's
// photos: listing, download, and an incremental change feed.
package drive

import (
	"context"
	"errors"
	"fmt"
)

// PhotoRef identifies one photo in a source folder.
type PhotoRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Lister interface {
	// ListPhotos returns every photo in the folder, in storage order.
	ListPhotos(ctx context.Context, folder string) ([]PhotoRef, error)
}

type Downloader interface {
	// Download returns the raw image bytes for a photo.
	Download(ctx context.Context, photoID string) ([]byte, error)
}

type ChangeFeed interface {
	// BaselineCursor returns a cursor positioned at "now": a subsequent
	// ListChanges with it reports only photos added after this call.
	BaselineCursor(ctx context.Context, folder string) (string, error)
	// ListChanges returns photos added or modified since the cursor, plus an
	// advanced cursor. Returns ErrStaleCursor if the cursor is unusable.
	ListChanges(ctx context.Context, folder, cursor string) (string, []PhotoRef, error)
}

// Drive is the full source-storage collaborator.
type Drive interface {
	Lister
	Downloader
	ChangeFeed
}

// ErrStaleCursor signals that a change-feed cursor is no longer valid and the
// caller must restart from a fresh baseline.
var ErrStaleCursor = errors.New("stale change cursor")

// TransportError wraps listing/download failures against the storage backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("drive %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
