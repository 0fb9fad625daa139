// Package yolo implements the raw ONNX-runtime detection backend: a
// YOLO model run through onnxruntime with manual letterbox
// preprocessing and per-class NMS postprocessing.
package yolo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/apex/log"
	ort "github.com/yalue/onnxruntime_go"

	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/imageproc"
	"inventory-detection-service/models"
)

const (
	numClasses    = 80
	numCandidates = 8400
	inputName     = "images"
	outputName    = "output0"
	maxPoolSize   = 10
)

var ortInit sync.Once

// session bundles one onnxruntime session with its bound tensors.
// Sessions are not safe for concurrent Run, so they live in a pool.
type session struct {
	sess   *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

// Detector is the ONNX backend. The session pool is created once at
// startup; a failed load leaves the backend constructed but not ready.
type Detector struct {
	modelPath        string
	defaultThreshold float64
	iouThreshold     float64
	maxImageSize     int

	pool  chan *session
	ready bool
}

// New loads the model and warms up a pool of inference sessions. On
// failure the backend is returned not-ready and the error is logged;
// /health reports the degraded state instead of crashing the process.
func New(cfg *config.Config) *Detector {
	d := &Detector{
		modelPath:        cfg.ModelPath,
		defaultThreshold: cfg.ConfidenceThreshold,
		iouThreshold:     cfg.IoUThreshold,
		maxImageSize:     cfg.MaxImageSize,
	}

	var initErr error
	ortInit.Do(func() {
		if cfg.OnnxLibPath != "" {
			ort.SetSharedLibraryPath(cfg.OnnxLibPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		log.Errorf("failed to initialize onnxruntime: %v", initErr)
		return d
	}

	size := cfg.SessionPoolSize
	if size <= 0 {
		size = int(math.Round(float64(runtime.NumCPU()) * 0.8))
	}
	if size < 1 {
		size = 1
	}
	if size > maxPoolSize {
		size = maxPoolSize
	}

	pool := make(chan *session, size)
	for i := 0; i < size; i++ {
		s, err := newSession(cfg.ModelPath)
		if err != nil {
			log.Errorf("failed to create model session %d: %v", i, err)
			drainAndClose(pool)
			return d
		}
		pool <- s
	}

	if err := warmUp(pool); err != nil {
		log.Errorf("model warmup failed: %v", err)
		drainAndClose(pool)
		return d
	}

	d.pool = pool
	d.ready = true
	log.Infof("ONNX model loaded: %s, %d sessions", cfg.ModelPath, size)
	return d
}

func newSession(modelPath string) (*session, error) {
	inputShape := ort.NewShape(1, 3, InputSize, InputSize)
	input, err := ort.NewTensor(inputShape, make([]float32, 3*InputSize*InputSize))
	if err != nil {
		return nil, err
	}

	outputShape := ort.NewShape(1, 4+numClasses, numCandidates)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	sess, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{outputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	return &session{sess: sess, input: input, output: output}, nil
}

// warmUp runs one zero-filled inference per session so the first real
// request doesn't pay model-load latency.
func warmUp(pool chan *session) error {
	count := len(pool)
	var wg sync.WaitGroup
	errs := make(chan error, count)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := <-pool
			defer func() { pool <- s }()
			data := s.input.GetData()
			for i := range data {
				data[i] = 0
			}
			if err := s.sess.Run(); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	return <-errs
}

func drainAndClose(pool chan *session) {
	for {
		select {
		case s := <-pool:
			s.destroy()
		default:
			return
		}
	}
}

func (s *session) destroy() {
	s.sess.Destroy()
	s.input.Destroy()
	s.output.Destroy()
}

func (d *Detector) Ready() bool { return d.ready }

func (d *Detector) ModelName() string { return d.modelPath }

func (d *Detector) Close() error {
	if d.pool != nil {
		for i := 0; i < cap(d.pool); i++ {
			s := <-d.pool
			s.destroy()
		}
		d.pool = nil
	}
	return nil
}

// Classes returns the full COCO taxonomy plus the inventory subset.
func (d *Detector) Classes() models.ClassesResponse {
	return models.ClassesResponse{
		AllClasses:        AllClasses(),
		InventoryRelevant: InventoryClasses(),
	}
}

// Detect runs the full tensor pipeline: normalize, letterbox, infer,
// decode, NMS, assemble. Zero surviving candidates is a success with
// an empty list, not an error.
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

	input, lb := LetterboxImage(norm.Image)

	var s *session
	select {
	case s = <-d.pool:
	case <-ctx.Done():
		return nil, &detector.InferenceError{Err: ctx.Err()}
	}
	defer func() { d.pool <- s }()

	copy(s.input.GetData(), input)
	if err := s.sess.Run(); err != nil {
		return nil, &detector.InferenceError{Err: fmt.Errorf("model run failed: %w", err)}
	}

	var allowlist map[int]bool
	if opts.FilterInventory {
		allowlist = inventoryRelevant
	}
	candidates := DecodeOutput(
		s.output.GetData(), numClasses, lb, norm.Scale,
		norm.OrigWidth, norm.OrigHeight, threshold, allowlist,
	)
	kept := NMS(candidates, d.iouThreshold)

	detections := make([]models.DetectedObject, 0, len(kept))
	for _, c := range kept {
		detections = append(detections, models.DetectedObject{
			ClassName:  ClassName(c.ClassID),
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
