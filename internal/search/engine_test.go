package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/models"
)

type fakeStore struct {
	faces map[uuid.UUID][]models.FaceRecord
	err   error
	loads int
}

func (s *fakeStore) LoadFaces(_ context.Context, eventID uuid.UUID) ([]models.FaceRecord, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.faces[eventID], nil
}

func face(photoID, photoName string, embedding []float32) models.FaceRecord {
	return models.FaceRecord{
		ID:        uuid.New(),
		PhotoID:   photoID,
		PhotoName: photoName,
		Embedding: embedding,
	}
}

func TestSearchToleranceBoundary(t *testing.T) {
	eventID := uuid.New()
	store := &fakeStore{faces: map[uuid.UUID][]models.FaceRecord{
		eventID: {
			face("near", "near.jpg", []float32{0.3, 0}),
			face("mid", "mid.jpg", []float32{0.6, 0}),
			face("far", "far.jpg", []float32{0.9, 0}),
		},
	}}
	engine := NewEngine(store, 2)
	query := [][]float32{{0, 0}}

	tests := []struct {
		name      string
		tolerance float64
		want      []string
	}{
		{"tight", 0.4, []string{"near"}},
		{"medium", 0.7, []string{"near", "mid"}},
		{"loose", 1.0, []string{"near", "mid", "far"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := engine.Search(context.Background(), eventID, query, tt.tolerance)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(matches) != len(tt.want) {
				t.Fatalf("got %d matches, want %d: %+v", len(matches), len(tt.want), matches)
			}
			for i, w := range tt.want {
				if matches[i].PhotoID != w {
					t.Errorf("match[%d] = %s, want %s", i, matches[i].PhotoID, w)
				}
			}
			// Widening the tolerance must only ever add matches, and results
			// stay sorted nearest first.
			for i := 1; i < len(matches); i++ {
				if matches[i].Distance < matches[i-1].Distance {
					t.Errorf("matches out of order at %d: %+v", i, matches)
				}
			}
		})
	}
}

func TestSearchDedupesPerPhoto(t *testing.T) {
	eventID := uuid.New()
	// Two faces in the same photo; the closer one decides the distance.
	store := &fakeStore{faces: map[uuid.UUID][]models.FaceRecord{
		eventID: {
			face("group", "group.jpg", []float32{0.5, 0}),
			face("group", "group.jpg", []float32{0.1, 0}),
		},
	}}
	engine := NewEngine(store, 2)

	matches, err := engine.Search(context.Background(), eventID, [][]float32{{0, 0}}, 1.0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if got := matches[0].Distance; got < 0.099 || got > 0.101 {
		t.Fatalf("distance = %g, want ~0.1", got)
	}
}

func TestSearchMultipleQueriesTakeMin(t *testing.T) {
	eventID := uuid.New()
	store := &fakeStore{faces: map[uuid.UUID][]models.FaceRecord{
		eventID: {face("p1", "p1.jpg", []float32{1, 0})},
	}}
	engine := NewEngine(store, 2)

	// First query misses, second is close.
	queries := [][]float32{{-1, 0}, {0.9, 0}}
	matches, err := engine.Search(context.Background(), eventID, queries, 0.5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if got := matches[0].Distance; got < 0.099 || got > 0.101 {
		t.Fatalf("distance = %g, want ~0.1", got)
	}
}

func TestSearchEmptyEvent(t *testing.T) {
	engine := NewEngine(&fakeStore{faces: map[uuid.UUID][]models.FaceRecord{}}, 2)

	matches, err := engine.Search(context.Background(), uuid.New(), [][]float32{{0, 0}}, 0.5)
	if err != nil {
		t.Fatalf("Search on empty event: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(matches))
	}
}

func TestSearchValidation(t *testing.T) {
	engine := NewEngine(&fakeStore{}, 2)
	eventID := uuid.New()

	if _, err := engine.Search(context.Background(), eventID, nil, 0.5); err == nil {
		t.Error("expected error for empty query set")
	}
	if _, err := engine.Search(context.Background(), eventID, [][]float32{{1, 2, 3}}, 0.5); err == nil {
		t.Error("expected error for wrong query dimension")
	}
	if _, err := engine.Search(context.Background(), eventID, [][]float32{{0, 0}}, 0); err == nil {
		t.Error("expected error for zero tolerance")
	}
}

func TestSearchStoreErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	engine := NewEngine(&fakeStore{err: boom}, 2)

	_, err := engine.Search(context.Background(), uuid.New(), [][]float32{{0, 0}}, 0.5)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

func TestCacheInvalidation(t *testing.T) {
	eventID := uuid.New()
	store := &fakeStore{faces: map[uuid.UUID][]models.FaceRecord{
		eventID: {face("p1", "p1.jpg", []float32{0, 0})},
	}}
	engine := NewEngine(store, 2)
	ctx := context.Background()
	query := [][]float32{{0, 0}}

	if _, err := engine.Search(ctx, eventID, query, 0.5); err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if _, err := engine.Search(ctx, eventID, query, 0.5); err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("store loads = %d, want 1 (cached)", store.loads)
	}

	// New face appended; stale until invalidated.
	store.faces[eventID] = append(store.faces[eventID], face("p2", "p2.jpg", []float32{0.1, 0}))
	matches, _ := engine.Search(ctx, eventID, query, 0.5)
	if len(matches) != 1 {
		t.Fatalf("expected stale cache to return 1 match, got %d", len(matches))
	}

	engine.Invalidate(eventID)
	matches, err := engine.Search(ctx, eventID, query, 0.5)
	if err != nil {
		t.Fatalf("Search after Invalidate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches after invalidation, want 2", len(matches))
	}
	if store.loads != 2 {
		t.Fatalf("store loads = %d, want 2", store.loads)
	}
}
