package detector

import (
	"fmt"

	"inventory-detection-service/models"
)

// InvalidImageError means the uploaded bytes could not be decoded.
type InvalidImageError struct {
	Err error
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("invalid image: %v", e.Err)
}

func (e *InvalidImageError) Unwrap() error { return e.Err }

// InferenceError means the model or runtime failed while processing a
// valid image.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// UpstreamError means the remote vision API call itself failed
// (network, authentication, rate limit). Never retried.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vision API error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("vision API error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ParseError means the model returned output that could not be parsed
// into the expected schema. Reported to the caller, not retried.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse detection results: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FailureResponse converts a detection error into the failed envelope.
// It upholds the invariant that success=false carries empty detections
// and summary and a non-empty error message.
func FailureResponse(err error, elapsedMs float64) *models.DetectionResponse {
	return &models.DetectionResponse{
		Success:          false,
		Detections:       []models.DetectedObject{},
		Summary:          []models.DetectionSummary{},
		ProcessingTimeMs: elapsedMs,
		Error:            err.Error(),
	}
}
