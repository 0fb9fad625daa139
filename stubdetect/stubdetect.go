// Package stubdetect is a deterministic, no-network detection backend
// intended for CI and local end-to-end tests. It exercises the full
// normalize + assemble path with output derived from a hash of the
// upload, so repeated runs are stable.
package stubdetect

import (
	"context"
	"crypto/sha256"
	"math"
	"time"

	"inventory-detection-service/detector"
	"inventory-detection-service/imageproc"
	"inventory-detection-service/models"
)

var stubLabels = []string{
	"Coca-Cola 12oz can",
	"Heinz ketchup bottle",
	"paper towel roll",
	"tomato sauce can",
}

// Detector is the stub backend. Always ready.
type Detector struct {
	maxImageSize int
}

// New creates the stub backend.
func New(maxImageSize int) *Detector {
	return &Detector{maxImageSize: maxImageSize}
}

func (d *Detector) Ready() bool { return true }

func (d *Detector) ModelName() string { return "stub" }

func (d *Detector) Close() error { return nil }

func (d *Detector) Classes() models.ClassesResponse {
	return models.ClassesResponse{
		ExampleLabels: stubLabels,
		Note:          "Deterministic stub backend for tests.",
	}
}

// Detect returns detections derived from a SHA-256 of the upload:
// stable per input, schema-valid, no network.
func (d *Detector) Detect(ctx context.Context, imageData []byte, opts detector.Options) (*models.DetectionResponse, error) {
	start := time.Now()

	norm, err := imageproc.Normalize(imageData, d.maxImageSize)
	if err != nil {
		return nil, &detector.InvalidImageError{Err: err}
	}

	sum := sha256.Sum256(imageData)
	numItems := int(sum[0])%len(stubLabels) + 1

	detections := make([]models.DetectedObject, 0, numItems)
	for i := 0; i < numItems; i++ {
		confidence := 0.5 + float64(sum[i+1])/512.0 // [0.5, 1.0)
		if confidence < opts.ConfidenceThreshold {
			continue
		}
		detections = append(detections, models.DetectedObject{
			ClassName:  stubLabels[i],
			ClassID:    0,
			Confidence: confidence,
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
