package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/snapmatch/internal/search"
	"github.com/your-org/snapmatch/internal/vision"
	"github.com/your-org/snapmatch/pkg/dto"
)

type SearchHandler struct {
	engine           *search.Engine
	defaultTolerance float64
	maxUploadSize    int64
	// Extractor is set after the vision pipeline is initialized.
	Extractor vision.Extractor
}

func NewSearchHandler(engine *search.Engine, defaultTolerance float64, maxUploadSize int64) *SearchHandler {
	return &SearchHandler{
		engine:           engine,
		defaultTolerance: defaultTolerance,
		maxUploadSize:    maxUploadSize,
	}
}

// Search accepts one or more selfie uploads and returns the event's photos
// containing a face within tolerance. With several selfies the per-selfie
// embeddings are all used as queries, plus their average, which is usually a
// steadier representation of the person than any single shot.
func (h *SearchHandler) Search(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	if h.Extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision pipeline not initialized"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}
	files := form.File["selfies"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one selfie required"})
		return
	}

	tolerance := h.defaultTolerance
	if tolStr := c.PostForm("tolerance"); tolStr != "" {
		tol, err := strconv.ParseFloat(tolStr, 64)
		if err != nil || tol <= 0 || tol > 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tolerance must be in (0, 2]"})
			return
		}
		tolerance = tol
	}

	var queries [][]float32
	for _, fh := range files {
		if fh.Size > h.maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fh.Filename + " exceeds upload limit"})
			return
		}
		file, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "open " + fh.Filename + " failed"})
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read " + fh.Filename + " failed"})
			return
		}

		faces, err := h.Extractor.Extract(data)
		if err != nil {
			var perr *vision.ProcessingError
			if errors.As(err, &perr) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fh.Filename + ": " + perr.Reason})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if len(faces) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face found in " + fh.Filename})
			return
		}
		// The first detection is the most confident one.
		queries = append(queries, faces[0].Embedding)
	}

	if len(queries) > 1 {
		embeddings := make([][]float32, len(queries))
		copy(embeddings, queries)
		queries = append(queries, vision.AverageEmbedding(embeddings))
	}

	matches, err := h.engine.Search(c.Request.Context(), eventID, queries, tolerance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.SearchResponse{
		EventID:   eventID,
		Queries:   len(queries),
		Tolerance: tolerance,
		Matches:   make([]dto.SearchMatch, 0, len(matches)),
	}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, dto.SearchMatch{
			PhotoID:   m.PhotoID,
			PhotoName: m.PhotoName,
			Distance:  m.Distance,
		})
	}
	c.JSON(http.StatusOK, resp)
}
