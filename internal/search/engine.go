// Package search answers nearest-neighbor face queries over indexed events.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/models"
	"github.com/your-org/snapmatch/internal/observability"
)

// Store loads the indexed faces for an event in a stable order.
type Store interface {
	LoadFaces(ctx context.Context, eventID uuid.UUID) ([]models.FaceRecord, error)
}

// Match is one photo that contains a face within tolerance of a query.
type Match struct {
	PhotoID   string  `json:"photo_id"`
	PhotoName string  `json:"photo_name"`
	Distance  float64 `json:"distance"`
}

// eventCache holds an event's embeddings packed row-major into one slice so a
// scan touches contiguous memory instead of chasing per-face slices.
type eventCache struct {
	matrix     []float32
	photoIDs   []string
	photoNames []string
	n          int
}

// Engine caches per-event face matrices and runs linear scans against them.
// Caches are built outside the lock and swapped in, so concurrent searches on
// warm events never wait on a cold load.
type Engine struct {
	store Store
	dim   int

	mu    sync.RWMutex
	cache map[uuid.UUID]*eventCache
}

func NewEngine(store Store, dim int) *Engine {
	return &Engine{
		store: store,
		dim:   dim,
		cache: make(map[uuid.UUID]*eventCache),
	}
}

// Search returns every photo in the event with at least one face closer than
// tolerance to at least one query embedding. Each photo appears once with its
// minimum distance across all faces and queries, sorted nearest first.
func (e *Engine) Search(ctx context.Context, eventID uuid.UUID, queries [][]float32, tolerance float64) ([]Match, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("search: no query embeddings")
	}
	for i, q := range queries {
		if len(q) != e.dim {
			return nil, fmt.Errorf("search: query %d has dimension %d, want %d", i, len(q), e.dim)
		}
	}
	if tolerance <= 0 {
		return nil, fmt.Errorf("search: tolerance must be positive, got %g", tolerance)
	}

	start := time.Now()
	defer func() {
		observability.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	ec, err := e.cacheFor(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ec.n == 0 {
		return []Match{}, nil
	}

	// Compare in squared space; sqrt only for the hits we keep.
	maxSq := float32(tolerance * tolerance)

	best := make(map[string]float32, 16)
	for row := 0; row < ec.n; row++ {
		vec := ec.matrix[row*e.dim : (row+1)*e.dim]
		for _, q := range queries {
			d := sqDistance(vec, q)
			if d > maxSq {
				continue
			}
			pid := ec.photoIDs[row]
			if cur, ok := best[pid]; !ok || d < cur {
				best[pid] = d
			}
		}
	}

	names := make(map[string]string, len(best))
	for row := 0; row < ec.n; row++ {
		pid := ec.photoIDs[row]
		if _, ok := best[pid]; ok {
			names[pid] = ec.photoNames[row]
		}
	}

	matches := make([]Match, 0, len(best))
	for pid, d := range best {
		matches = append(matches, Match{
			PhotoID:   pid,
			PhotoName: names[pid],
			Distance:  math.Sqrt(float64(d)),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].PhotoID < matches[j].PhotoID
	})
	return matches, nil
}

// Invalidate drops the cached matrix for an event. The next search rebuilds
// it from the store.
func (e *Engine) Invalidate(eventID uuid.UUID) {
	e.mu.Lock()
	delete(e.cache, eventID)
	e.mu.Unlock()
	e.publishStats()
}

// CachedEvents reports how many event matrices are resident.
func (e *Engine) CachedEvents() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *Engine) cacheFor(ctx context.Context, eventID uuid.UUID) (*eventCache, error) {
	e.mu.RLock()
	ec, ok := e.cache[eventID]
	e.mu.RUnlock()
	if ok {
		return ec, nil
	}

	faces, err := e.store.LoadFaces(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load faces for event %s: %w", eventID, err)
	}

	built := &eventCache{
		matrix:     make([]float32, 0, len(faces)*e.dim),
		photoIDs:   make([]string, 0, len(faces)),
		photoNames: make([]string, 0, len(faces)),
	}
	for _, f := range faces {
		if len(f.Embedding) != e.dim {
			return nil, fmt.Errorf("face %s has dimension %d, want %d", f.ID, len(f.Embedding), e.dim)
		}
		built.matrix = append(built.matrix, f.Embedding...)
		built.photoIDs = append(built.photoIDs, f.PhotoID)
		built.photoNames = append(built.photoNames, f.PhotoName)
		built.n++
	}

	e.mu.Lock()
	// A concurrent load may have won; keep the resident copy.
	if cur, ok := e.cache[eventID]; ok {
		e.mu.Unlock()
		return cur, nil
	}
	e.cache[eventID] = built
	e.mu.Unlock()

	e.publishStats()
	return built, nil
}

func (e *Engine) publishStats() {
	observability.CacheEntries.Set(float64(e.CachedEvents()))
}

func sqDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
