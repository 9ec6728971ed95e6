package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/tasks"
	"github.com/your-org/snapmatch/pkg/dto"
)

type TaskHandler struct {
	tracker *tasks.Tracker
}

func NewTaskHandler(tracker *tasks.Tracker) *TaskHandler {
	return &TaskHandler{tracker: tracker}
}

func taskResponse(t tasks.Task) dto.TaskResponse {
	resp := dto.TaskResponse{
		ID:          t.ID,
		EventID:     t.EventID,
		Status:      string(t.Status),
		Progress:    t.Progress,
		Total:       t.Total,
		CurrentItem: t.CurrentItem,
		FacesFound:  t.FacesFound,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
	for _, f := range t.ItemFailures {
		resp.ItemFailures = append(resp.ItemFailures, dto.ItemFailure{
			PhotoID:   f.PhotoID,
			PhotoName: f.PhotoName,
			Reason:    f.Reason,
		})
	}
	return resp
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	task, ok := h.tracker.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

// LatestForEvent returns the newest task for an event, running or finished.
func (h *TaskHandler) LatestForEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	task, ok := h.tracker.LatestForEvent(eventID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no task for event"})
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}
