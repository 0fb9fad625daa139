// Package opencv implements the delegating tensor backend: the same
// YOLO ONNX model run through OpenCV's DNN module (gocv), which owns
// blob preprocessing and non-max suppression.
package opencv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
	"gocv.io/x/gocv"

	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/imageproc"
	"inventory-detection-service/models"
	"inventory-detection-service/yolo"
)

const numClasses = 80

// Detector is the OpenCV DNN backend. Net forward passes are not
// concurrent-safe, so they are serialized with a mutex.
type Detector struct {
	modelPath        string
	defaultThreshold float64
	iouThreshold     float64
	maxImageSize     int

	mu    sync.Mutex
	net   gocv.Net
	ready bool
}

// New loads the ONNX model into an OpenCV DNN net. A failed load
// leaves the backend not-ready, reported via /health.
func New(cfg *config.Config) *Detector {
	d := &Detector{
		modelPath:        cfg.ModelPath,
		defaultThreshold: cfg.ConfidenceThreshold,
		iouThreshold:     cfg.IoUThreshold,
		maxImageSize:     cfg.MaxImageSize,
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		log.Errorf("failed to load ONNX model into OpenCV DNN: %s", cfg.ModelPath)
		return d
	}
	d.net = net
	d.ready = true
	log.Infof("OpenCV DNN model loaded: %s", cfg.ModelPath)
	return d
}

func (d *Detector) Ready() bool { return d.ready }

func (d *Detector) ModelName() string { return d.modelPath }

func (d *Detector) Close() error {
	if d.ready {
		d.ready = false
		return d.net.Close()
	}
	return nil
}

// Classes returns the same COCO taxonomy as the raw ONNX backend.
func (d *Detector) Classes() models.ClassesResponse {
	return models.ClassesResponse{
		AllClasses:        yolo.AllClasses(),
		InventoryRelevant: yolo.InventoryClasses(),
	}
}

// Detect normalizes the upload, lets OpenCV build the input blob,
// decodes the forward pass and delegates suppression to
// gocv.NMSBoxes, applied per class so distinct classes never suppress
// each other.
func (d *Detector) Detect(ctx context.Context, imageData []byte, opts detector.Options) (*models.DetectionResponse, error) {
	if !d.ready {
		return nil, &detector.InferenceError{Err: errors.New("detection model not loaded")}
	}

	start := time.Now()
	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = d.defaultThreshold
	}

	norm, err := imageproc.Normalize(imageData, d.maxImageSize)
	if err != nil {
		return nil, &detector.InvalidImageError{Err: err}
	}

	output, err := d.forward(norm.Image)
	if err != nil {
		return nil, &detector.InferenceError{Err: err}
	}

	var allowlist map[int]string
	if opts.FilterInventory {
		allowlist = yolo.InventoryClasses()
	}
	candidates := decodeSquare(output, norm, threshold, allowlist)
	kept := suppress(candidates, float32(d.iouThreshold))

	detections := make([]models.DetectedObject, 0, len(kept))
	for _, c := range kept {
		detections = append(detections, models.DetectedObject{
			ClassName:  yolo.ClassName(c.ClassID),
			ClassID:    c.ClassID,
			Confidence: c.Confidence,
			BBox: &models.BoundingBox{
				X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2,
			},
		})
	}

	summary := detector.Summarize(detections)
	return &models.DetectionResponse{
		Success:          true,
		Detections:       detections,
		Summary:          summary,
		TotalObjects:     detector.TotalObjects(summary),
		ProcessingTimeMs: math.Round(float64(time.Since(start).Microseconds())/1000*10) / 10,
		ImageWidth:       norm.OrigWidth,
		ImageHeight:      norm.OrigHeight,
	}, nil
}

// forward runs one DNN pass and returns a copy of the flat output
// tensor, [1, 4+numClasses, n].
func (d *Detector) forward(img *image.RGBA) ([]float32, error) {
	rgba, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)

	blob := gocv.BlobFromImage(bgr, 1.0/255.0,
		image.Pt(yolo.InputSize, yolo.InputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}
	result := make([]float32, len(data))
	copy(result, data)
	return result, nil
}

// decodeSquare maps model-space boxes back through the plain square
// resize BlobFromImage performed (no letterboxing in this backend, so
// the two axes scale independently).
func decodeSquare(output []float32, norm *imageproc.Normalized, confThreshold float64, allowlist map[int]string) []yolo.Candidate {
	rows := 4 + numClasses
	n := len(output) / rows
	if n == 0 || len(output) != rows*n {
		return nil
	}

	normW := float64(norm.Image.Bounds().Dx())
	normH := float64(norm.Image.Bounds().Dy())
	scaleX := normW / float64(yolo.InputSize) / norm.Scale
	scaleY := normH / float64(yolo.InputSize) / norm.Scale
	origW := float64(norm.OrigWidth)
	origH := float64(norm.OrigHeight)

	candidates := make([]yolo.Candidate, 0, 64)
	for i := 0; i < n; i++ {
		classID := 0
		best := float32(0)
		for j := 0; j < numClasses; j++ {
			if score := output[(4+j)*n+i]; score > best {
				best = score
				classID = j
			}
		}
		confidence := float64(best)
		if confidence < confThreshold {
			continue
		}
		if allowlist != nil {
			if _, ok := allowlist[classID]; !ok {
				continue
			}
		}

		cx := float64(output[i])
		cy := float64(output[n+i])
		w := float64(output[2*n+i])
		h := float64(output[3*n+i])

		x1 := clamp((cx-w/2)*scaleX, 0, origW)
		y1 := clamp((cy-h/2)*scaleY, 0, origH)
		x2 := clamp((cx+w/2)*scaleX, 0, origW)
		y2 := clamp((cy+h/2)*scaleY, 0, origH)
		if x2-x1 < 1 || y2-y1 < 1 {
			continue
		}

		candidates = append(candidates, yolo.Candidate{
			ClassID:    classID,
			Confidence: confidence,
			X1:         x1, Y1: y1, X2: x2, Y2: y2,
		})
	}
	return candidates
}

// suppress delegates NMS to OpenCV, one call per class so suppression
// never crosses class boundaries.
func suppress(candidates []yolo.Candidate, iouThreshold float32) []yolo.Candidate {
	byClass := make(map[int][]yolo.Candidate)
	for _, c := range candidates {
		byClass[c.ClassID] = append(byClass[c.ClassID], c)
	}

	kept := make([]yolo.Candidate, 0, len(candidates))
	for _, group := range byClass {
		boxes := make([]image.Rectangle, len(group))
		scores := make([]float32, len(group))
		for i, c := range group {
			boxes[i] = image.Rect(int(c.X1), int(c.Y1), int(c.X2), int(c.Y2))
			scores[i] = float32(c.Confidence)
		}
		for _, idx := range gocv.NMSBoxes(boxes, scores, 0, iouThreshold) {
			kept = append(kept, group[idx])
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})
	return kept
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
