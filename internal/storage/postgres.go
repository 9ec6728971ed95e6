package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/snapmatch/internal/config"
	"github.com/your-org/snapmatch/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(cfg config.DatabaseConfig, embeddingDim int) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, name, folder string) (*models.Event, error) {
	e := &models.Event{
		ID:             uuid.New(),
		Name:           name,
		Folder:         folder,
		IndexingStatus: models.IndexingNotStarted,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (id, name, folder) VALUES ($1, $2, $3) RETURNING sync_interval_minutes, created_at, updated_at`,
		e.ID, e.Name, e.Folder,
	).Scan(&e.SyncIntervalMinutes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

const eventColumns = `id, name, folder, indexing_status, indexed_photos, total_faces,
	auto_sync_enabled, sync_interval_minutes, last_sync_at, change_cursor, created_at, updated_at`

func scanEvent(row pgx.Row) (*models.Event, error) {
	e := &models.Event{}
	err := row.Scan(&e.ID, &e.Name, &e.Folder, &e.IndexingStatus, &e.IndexedPhotos, &e.TotalFaces,
		&e.AutoSyncEnabled, &e.SyncIntervalMinutes, &e.LastSyncAt, &e.ChangeCursor, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found")
	}
	return nil
}

func (s *PostgresStore) UpdateEventStatus(ctx context.Context, id uuid.UUID, status models.IndexingStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET indexing_status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateEventCounters(ctx context.Context, id uuid.UUID, indexedPhotos, totalFaces int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET indexed_photos = $2, total_faces = $3, updated_at = now() WHERE id = $1`,
		id, indexedPhotos, totalFaces)
	if err != nil {
		return fmt.Errorf("update event counters: %w", err)
	}
	return nil
}

// --- Sync settings ---

func (s *PostgresStore) UpdateSyncSettings(ctx context.Context, id uuid.UUID, enabled bool, intervalMinutes int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET auto_sync_enabled = $2, sync_interval_minutes = $3, updated_at = now() WHERE id = $1`,
		id, enabled, intervalMinutes)
	if err != nil {
		return fmt.Errorf("update sync settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSyncCursor(ctx context.Context, id uuid.UUID, cursor string, syncedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET change_cursor = $2, last_sync_at = $3, updated_at = now() WHERE id = $1`,
		id, cursor, syncedAt)
	if err != nil {
		return fmt.Errorf("update sync cursor: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAutoSyncEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE auto_sync_enabled ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list auto-sync events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, nil
}

// --- Faces ---

func (s *PostgresStore) AppendFace(ctx context.Context, face *models.FaceRecord) error {
	if len(face.Embedding) != s.dim {
		return fmt.Errorf("embedding has dimension %d, want %d", len(face.Embedding), s.dim)
	}
	box, err := json.Marshal(face.Box)
	if err != nil {
		return fmt.Errorf("encode face box: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO faces (id, event_id, photo_id, photo_name, embedding, box, indexed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		face.ID, face.EventID, face.PhotoID, face.PhotoName,
		pgvector.NewVector(face.Embedding), box, face.IndexedAt)
	if err != nil {
		return fmt.Errorf("append face: %w", err)
	}
	return nil
}

// LoadFaces returns every face of an event in insertion order, embeddings
// included.
func (s *PostgresStore) LoadFaces(ctx context.Context, eventID uuid.UUID) ([]models.FaceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, photo_id, photo_name, embedding, box, indexed_at
		 FROM faces WHERE event_id = $1 ORDER BY indexed_at, id`, eventID)
	if err != nil {
		return nil, fmt.Errorf("load faces: %w", err)
	}
	defer rows.Close()

	var faces []models.FaceRecord
	for rows.Next() {
		var f models.FaceRecord
		var vec pgvector.Vector
		var box []byte
		if err := rows.Scan(&f.ID, &f.EventID, &f.PhotoID, &f.PhotoName, &vec, &box, &f.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = vec.Slice()
		if err := json.Unmarshal(box, &f.Box); err != nil {
			return nil, fmt.Errorf("decode face box: %w", err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// ClearFaces drops an event's corpus ahead of a full re-index.
func (s *PostgresStore) ClearFaces(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM faces WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("clear faces: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountFaces(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE event_id = $1`, eventID,
	).Scan(&count)
	return count, err
}

// --- Checkpoints ---

// SaveCheckpoint upserts, so reprocessing a photo never leaves two rows.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (event_id, photo_id, photo_name, faces_found, processed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id, photo_id)
		 DO UPDATE SET photo_name = EXCLUDED.photo_name, faces_found = EXCLUDED.faces_found, processed_at = EXCLUDED.processed_at`,
		cp.EventID, cp.PhotoID, cp.PhotoName, cp.FacesFound, cp.ProcessedAt)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Checkpoints returns the event's checkpoints keyed by photo id.
func (s *PostgresStore) Checkpoints(ctx context.Context, eventID uuid.UUID) (map[string]models.Checkpoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, photo_id, photo_name, faces_found, processed_at
		 FROM checkpoints WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Checkpoint)
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.EventID, &cp.PhotoID, &cp.PhotoName, &cp.FacesFound, &cp.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out[cp.PhotoID] = cp
	}
	return out, nil
}

func (s *PostgresStore) CountCheckpoints(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM checkpoints WHERE event_id = $1`, eventID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStore) ClearCheckpoints(ctx context.Context, eventID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE event_id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return nil
}

// --- Synced photos ---

func (s *PostgresStore) IsSynced(ctx context.Context, eventID uuid.UUID, photoID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM synced_photos WHERE event_id = $1 AND photo_id = $2)`,
		eventID, photoID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check synced photo: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkSynced(ctx context.Context, eventID uuid.UUID, photoID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO synced_photos (event_id, photo_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		eventID, photoID)
	if err != nil {
		return fmt.Errorf("mark synced photo: %w", err)
	}
	return nil
}
