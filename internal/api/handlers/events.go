package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/indexer"
	"github.com/your-org/snapmatch/internal/models"
	"github.com/your-org/snapmatch/internal/storage"
	"github.com/your-org/snapmatch/pkg/dto"
)

type EventHandler struct {
	db     *storage.PostgresStore
	worker *indexer.Worker
}

func NewEventHandler(db *storage.PostgresStore, worker *indexer.Worker) *EventHandler {
	return &EventHandler{db: db, worker: worker}
}

func eventResponse(e *models.Event) dto.EventResponse {
	return dto.EventResponse{
		ID:                  e.ID,
		Name:                e.Name,
		Folder:              e.Folder,
		IndexingStatus:      string(e.IndexingStatus),
		IndexedPhotos:       e.IndexedPhotos,
		TotalFaces:          e.TotalFaces,
		AutoSyncEnabled:     e.AutoSyncEnabled,
		SyncIntervalMinutes: e.SyncIntervalMinutes,
		LastSyncAt:          e.LastSyncAt,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	event, err := h.db.CreateEvent(c.Request.Context(), req.Name, req.Folder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, eventResponse(event))
}

func (h *EventHandler) List(c *gin.Context) {
	events, err := h.db.ListEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, eventResponse(&events[i]))
	}
	c.JSON(http.StatusOK, gin.H{"events": resp, "total": len(resp)})
}

func (h *EventHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.db.GetEvent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	c.JSON(http.StatusOK, eventResponse(event))
}

func (h *EventHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.db.DeleteEvent(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// StartIndexing launches a background run and returns the task id to poll.
// If a run is already active for the event, its task id is returned instead
// of starting a second one.
func (h *EventHandler) StartIndexing(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	taskID, err := h.worker.StartIndexing(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.StartIndexingResponse{TaskID: taskID})
}
