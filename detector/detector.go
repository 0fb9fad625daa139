// Package detector defines the contract shared by every detection
// backend and the helpers that assemble the response envelope.
package detector

import (
	"context"

	"inventory-detection-service/models"
)

// Options are the per-request detection parameters.
type Options struct {
	// ConfidenceThreshold drops candidates below this score. Zero means
	// use the backend's configured default.
	ConfidenceThreshold float64

	// FilterInventory restricts tensor backends to the inventory
	// allow-list. Ignored by the vision backend.
	FilterInventory bool
}

// Detector is implemented by each backend. One instance is constructed
// at startup and shared across requests; implementations must be safe
// for concurrent use.
type Detector interface {
	// Detect runs the full pipeline on raw upload bytes. On failure it
	// returns a typed error from this package (InvalidImageError,
	// InferenceError, UpstreamError or ParseError); zero detections on
	// a healthy run is a success, not an error.
	Detect(ctx context.Context, imageData []byte, opts Options) (*models.DetectionResponse, error)

	// Ready reports whether the backend finished initializing. A
	// backend that failed to load stays constructed but not ready.
	Ready() bool

	// ModelName identifies the underlying model for /health.
	ModelName() string

	// Classes returns the backend's class taxonomy for /classes.
	Classes() models.ClassesResponse

	// Close releases any resources held by the backend.
	Close() error
}
