package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/autosync"
	"github.com/your-org/snapmatch/pkg/dto"
)

type SyncHandler struct {
	scheduler       *autosync.Scheduler
	defaultInterval int
}

func NewSyncHandler(scheduler *autosync.Scheduler, defaultInterval int) *SyncHandler {
	return &SyncHandler{scheduler: scheduler, defaultInterval: defaultInterval}
}

func (h *SyncHandler) Enable(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	var req dto.EnableSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IntervalMinutes == 0 {
		req.IntervalMinutes = h.defaultInterval
	}

	if err := h.scheduler.Enable(c.Request.Context(), eventID, req.IntervalMinutes); err != nil {
		var verr *autosync.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.Status(c)
}

func (h *SyncHandler) Disable(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if err := h.scheduler.Disable(c.Request.Context(), eventID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	h.Status(c)
}

func (h *SyncHandler) Status(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	st, err := h.scheduler.Status(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.SyncStatusResponse{
		Enabled:         st.Enabled,
		IntervalMinutes: st.IntervalMinutes,
		LastSyncAt:      st.LastSyncAt,
		LoopRunning:     st.LoopRunning,
	})
}
