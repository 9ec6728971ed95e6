package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"path/filepath"
	"runtime"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/snapmatch/internal/config"
)

// ONNXExtractor runs a two-stage pipeline: a face detector followed by an
// embedding model, both via ONNX Runtime. Fast mode loads the 320px detector,
// accurate mode the 640px one; the embedder is shared.
type ONNXExtractor struct {
	detector  *detector
	embedder  *embedder
	threshold float32
	mode      Mode
}

// NewONNXExtractor loads both models from cfg.ModelsDir. The caller must have
// initialized the ONNX Runtime environment.
func NewONNXExtractor(cfg config.VisionConfig) (*ONNXExtractor, error) {
	mode := DetectMode(cfg.Mode, cfg.ModelsDir)

	detModel := fastDetectorModel
	detW, detH := 320, 240
	if mode == ModeAccurate {
		detModel = accurateDetectorModel
		detW, detH = 640, 480
	}

	detPath := filepath.Join(cfg.ModelsDir, detModel)
	slog.Info("loading face detector", "path", detPath, "mode", mode)
	det, err := newDetector(detPath, detW, detH)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	embPath := filepath.Join(cfg.ModelsDir, embedderModel)
	slog.Info("loading face embedder", "path", embPath, "dim", cfg.EmbeddingDim)
	emb, err := newEmbedder(embPath, cfg.EmbeddingDim)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXExtractor{
		detector:  det,
		embedder:  emb,
		threshold: float32(cfg.DetectionThreshold),
		mode:      mode,
	}, nil
}

// Mode reports the detector mode chosen at startup.
func (x *ONNXExtractor) Mode() Mode { return x.mode }

// Extract decodes the image, detects faces and embeds each one.
func (x *ONNXExtractor) Extract(imageData []byte) ([]Face, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, &ProcessingError{Reason: "decode image", Err: err}
	}

	boxes, err := x.detector.detect(img, x.threshold)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]Face, 0, len(boxes))
	for _, box := range boxes {
		crop := cropRegion(img, box)
		if crop == nil {
			continue
		}
		emb, err := x.embedder.embed(crop)
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}
		faces = append(faces, Face{Embedding: emb, Box: box})
	}

	return faces, nil
}

func (x *ONNXExtractor) Close() {
	if x.detector != nil {
		x.detector.close()
	}
	if x.embedder != nil {
		x.embedder.close()
	}
}

// LibraryPath returns the ONNX Runtime shared library name for this OS.
func LibraryPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

// --- detector ---

// detector wraps an UltraFace-style model: input [1,3,H,W], outputs
// scores [1,N,2] and boxes [1,N,4] with corner coordinates normalized to 0..1.
type detector struct {
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scoresOut *ort.Tensor[float32]
	boxesOut  *ort.Tensor[float32]
	inputW    int
	inputH    int
	numBoxes  int
}

func newDetector(modelPath string, inputW, inputH int) (*detector, error) {
	// Prior-box count for the RFB detector at this resolution.
	numBoxes := 4420
	if inputW == 640 {
		numBoxes = 17640
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numBoxes), 2))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create scores tensor: %w", err)
	}
	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numBoxes), 4))
	if err != nil {
		input.Destroy()
		scores.Destroy()
		return nil, fmt.Errorf("create boxes tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"scores", "boxes"},
		[]ort.Value{input},
		[]ort.Value{scores, boxes},
		nil,
	)
	if err != nil {
		input.Destroy()
		scores.Destroy()
		boxes.Destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &detector{
		session:   session,
		input:     input,
		scoresOut: scores,
		boxesOut:  boxes,
		inputW:    inputW,
		inputH:    inputH,
		numBoxes:  numBoxes,
	}, nil
}

func (d *detector) detect(img image.Image, threshold float32) ([][4]float32, error) {
	copy(d.input.GetData(), imageToCHW(img, d.inputW, d.inputH, 127, 128))

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detector: %w", err)
	}

	scores := d.scoresOut.GetData()
	rawBoxes := d.boxesOut.GetData()

	bounds := img.Bounds()
	w := float32(bounds.Dx())
	h := float32(bounds.Dy())

	type scored struct {
		box  [4]float32
		conf float32
	}
	var candidates []scored
	for i := 0; i < d.numBoxes; i++ {
		conf := scores[i*2+1] // class 1 is "face"
		if conf < threshold {
			continue
		}
		candidates = append(candidates, scored{
			box: [4]float32{
				clamp(rawBoxes[i*4+0]*w, 0, w),
				clamp(rawBoxes[i*4+1]*h, 0, h),
				clamp(rawBoxes[i*4+2]*w, 0, w),
				clamp(rawBoxes[i*4+3]*h, 0, h),
			},
			conf: conf,
		})
	}

	// Greedy NMS, highest confidence first.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].conf > candidates[j].conf })
	var kept [][4]float32
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if iou(c.box, k) > 0.4 {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c.box)
		}
	}

	return kept, nil
}

func (d *detector) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	if d.scoresOut != nil {
		d.scoresOut.Destroy()
	}
	if d.boxesOut != nil {
		d.boxesOut.Destroy()
	}
}

// --- embedder ---

// embedder wraps an ArcFace-style model: 112x112 aligned crop in, fixed-length
// embedding out (L2-normalized here).
type embedder struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	dim     int
}

func newEmbedder(modelPath string, dim int) (*embedder, error) {
	const side = 112

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, side, side))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &embedder{session: session, input: input, output: output, dim: dim}, nil
}

func (e *embedder) embed(crop image.Image) ([]float32, error) {
	copy(e.input.GetData(), imageToCHW(crop, 112, 112, 127.5, 127.5))

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedder: %w", err)
	}

	emb := make([]float32, e.dim)
	copy(emb, e.output.GetData())
	l2Normalize(emb)
	return emb, nil
}

func (e *embedder) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.input != nil {
		e.input.Destroy()
	}
	if e.output != nil {
		e.output.Destroy()
	}
}

// --- image helpers ---

// imageToCHW resizes with nearest-neighbour sampling and converts to CHW
// float32 with (pixel - mean) / std normalization.
func imageToCHW(img image.Image, targetW, targetH int, mean, std float32) []float32 {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	data := make([]float32, 3*targetW*targetH)
	plane := targetW * targetH

	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			r, g, b, _ := img.At(srcX, srcY).RGBA()

			idx := y*targetW + x
			data[idx] = (float32(r>>8) - mean) / std
			data[plane+idx] = (float32(g>>8) - mean) / std
			data[2*plane+idx] = (float32(b>>8) - mean) / std
		}
	}

	return data
}

// cropRegion extracts a face box with 10% padding on each side.
func cropRegion(img image.Image, box [4]float32) image.Image {
	bounds := img.Bounds()

	padW := (box[2] - box[0]) * 0.1
	padH := (box[3] - box[1]) * 0.1

	x1 := maxInt(int(box[0]-padW), bounds.Min.X)
	y1 := maxInt(int(box[1]-padH), bounds.Min.Y)
	x2 := minInt(int(box[2]+padW), bounds.Max.X)
	y2 := minInt(int(box[3]+padH), bounds.Max.Y)

	if x2-x1 <= 0 || y2-y1 <= 0 {
		return nil
	}

	crop := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			crop.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return crop
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	iw := x2 - x1
	ih := y2 - y1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
