package models

// BoundingBox is a rectangle in original-image pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectedObject is a single detected item. Tensor backends fill the
// bounding box; the vision backend leaves it nil and may attach a
// free-text description instead.
type DetectedObject struct {
	ClassName   string       `json:"class_name"`
	ClassID     int          `json:"class_id"`
	Confidence  float64      `json:"confidence"`
	BBox        *BoundingBox `json:"bbox,omitempty"`
	Description string       `json:"description,omitempty"`
}

// SectionCounts holds per-cell counts for the 3x3 grid prompt.
type SectionCounts struct {
	TopLeft      int `json:"top_left"`
	TopCenter    int `json:"top_center"`
	TopRight     int `json:"top_right"`
	MiddleLeft   int `json:"middle_left"`
	MiddleCenter int `json:"middle_center"`
	MiddleRight  int `json:"middle_right"`
	BottomLeft   int `json:"bottom_left"`
	BottomCenter int `json:"bottom_center"`
	BottomRight  int `json:"bottom_right"`
}

// Sum returns the total count across all nine grid sections.
func (s *SectionCounts) Sum() int {
	if s == nil {
		return 0
	}
	return s.TopLeft + s.TopCenter + s.TopRight +
		s.MiddleLeft + s.MiddleCenter + s.MiddleRight +
		s.BottomLeft + s.BottomCenter + s.BottomRight
}

// DetectionSummary is the per-class aggregate view.
type DetectionSummary struct {
	ClassName       string         `json:"class_name"`
	Count           int            `json:"count"`
	AvgConfidence   float64        `json:"avg_confidence"`
	ConfidenceLevel string         `json:"confidence_level,omitempty"`
	Sections        *SectionCounts `json:"sections,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	NeedsReview     bool           `json:"needs_review"`
}

// DetectionResponse is the envelope returned by every backend.
// Invariant: success=false implies empty detections/summary and a
// non-empty error; success=true implies an empty error.
type DetectionResponse struct {
	Success          bool               `json:"success"`
	Detections       []DetectedObject   `json:"detections"`
	Summary          []DetectionSummary `json:"summary"`
	TotalObjects     int                `json:"total_objects"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	ImageWidth       int                `json:"image_width"`
	ImageHeight      int                `json:"image_height"`
	Error            string             `json:"error,omitempty"`
	ImagePreview     string             `json:"image_preview,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelName   string `json:"model_name"`
	Version     string `json:"version"`
}

// ClassesResponse is returned by GET /classes. Tensor backends report
// their full taxonomy plus the inventory subset; the vision backend
// reports illustrative example labels only.
type ClassesResponse struct {
	AllClasses        map[int]string `json:"all_classes,omitempty"`
	InventoryRelevant map[int]string `json:"inventory_relevant,omitempty"`
	ExampleLabels     []string       `json:"example_labels,omitempty"`
	Note              string         `json:"note,omitempty"`
}
