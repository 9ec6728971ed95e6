// Package vision extracts face embeddings from event photos and selfies.
package vision

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Face is one detected face: a fixed-length L2-normalized embedding plus its
// bounding box in original-image pixel coordinates.
type Face struct {
	Embedding []float32
	Box       [4]float32 // x1, y1, x2, y2
}

// Extractor turns raw image bytes into zero or more faces.
type Extractor interface {
	Extract(imageData []byte) ([]Face, error)
}

// ProcessingError marks an image that could not be processed (corrupt or
// unsupported). Indexing treats it as a per-photo failure, not a run failure.
type ProcessingError struct {
	Reason string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("process image: %s: %v", e.Reason, e.Err)
	}
	return "process image: " + e.Reason
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Mode selects the detector trade-off. Decided once per process, not per photo.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeAccurate Mode = "accurate"
)

const (
	fastDetectorModel     = "face-det-320.onnx"
	accurateDetectorModel = "face-det-640.onnx"
	embedderModel         = "face-embed.onnx"
)

// DetectMode resolves the execution mode: an explicit config value wins,
// otherwise the accurate model is used when its file is present.
func DetectMode(configured, modelsDir string) Mode {
	switch Mode(configured) {
	case ModeFast, ModeAccurate:
		return Mode(configured)
	}
	if _, err := os.Stat(filepath.Join(modelsDir, accurateDetectorModel)); err == nil {
		return ModeAccurate
	}
	return ModeFast
}

// AverageEmbedding combines several embeddings of the same person into one
// L2-normalized query vector. Returns nil for empty input.
func AverageEmbedding(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	avg := make([]float32, len(embeddings[0]))
	for _, emb := range embeddings {
		for i, v := range emb {
			avg[i] += v
		}
	}
	n := float32(len(embeddings))
	for i := range avg {
		avg[i] /= n
	}
	l2Normalize(avg)
	return avg
}

// l2Normalize scales v to unit length in-place.
func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
