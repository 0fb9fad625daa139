// Package vision implements the cloud vision-LLM detection backend:
// the image is recompressed, base64-encoded and sent to the Anthropic
// Messages API with a counting prompt, and the JSON reply is parsed
// and reconciled into the detection envelope.
package vision

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/apex/log"

	"inventory-detection-service/anthropic"
	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/imageproc"
	"inventory-detection-service/models"
)

// PromptMode selects which prompt variant is sent to the model.
type PromptMode string

const (
	// ModeGrid asks for per-section counts on a 3x3 grid plus a total.
	ModeGrid PromptMode = "grid"
	// ModeFlat asks for one count and numeric confidence per item.
	ModeFlat PromptMode = "flat"
)

// Detector is the vision-LLM backend. One instance is shared across
// requests; the underlying API client is stateless.
type Detector struct {
	client           *anthropic.Client
	mode             PromptMode
	defaultThreshold float64
	maxImageSize     int
	ready            bool
}

// New constructs the vision backend. Without an API key the backend
// stays not-ready and /health reports the degraded state.
func New(cfg *config.Config) *Detector {
	d := &Detector{
		mode:             PromptMode(cfg.VisionPromptMode),
		defaultThreshold: cfg.ConfidenceThreshold,
		maxImageSize:     cfg.MaxImageSize,
	}
	if d.mode != ModeFlat {
		d.mode = ModeGrid
	}
	if cfg.AnthropicAPIKey == "" {
		log.Error("ANTHROPIC_API_KEY not set, vision backend unavailable")
		return d
	}
	d.client = anthropic.NewClient(
		cfg.AnthropicAPIKey,
		cfg.AnthropicModel,
		cfg.AnthropicMaxTokens,
		cfg.AnthropicThinkingBudget,
	)
	d.ready = true
	log.Infof("Anthropic client initialized, model: %s, prompt mode: %s", cfg.AnthropicModel, d.mode)
	return d
}

// NewWithClient constructs the backend around an existing client.
// Used by tests to point at a local server.
func NewWithClient(client *anthropic.Client, mode PromptMode, defaultThreshold float64, maxImageSize int) *Detector {
	return &Detector{
		client:           client,
		mode:             mode,
		defaultThreshold: defaultThreshold,
		maxImageSize:     maxImageSize,
		ready:            true,
	}
}

func (d *Detector) Ready() bool { return d.ready }

func (d *Detector) ModelName() string {
	if d.client == nil {
		return ""
	}
	return d.client.Model()
}

func (d *Detector) Close() error { return nil }

// Classes returns illustrative labels only: the vision backend has no
// fixed taxonomy, it names whatever products it sees.
func (d *Detector) Classes() models.ClassesResponse {
	return models.ClassesResponse{
		ExampleLabels: []string{
			"Coca-Cola 12oz can",
			"Heinz ketchup bottle",
			"paper towel roll",
			"tomato sauce can",
			"cooking oil jug",
		},
		Note: "The vision backend identifies arbitrary products; these labels are examples, not a fixed taxonomy.",
	}
}

// Detect sends the normalized image to the vision API and reconciles
// the reply into a detection response.
func (d *Detector) Detect(ctx context.Context, imageData []byte, opts detector.Options) (*models.DetectionResponse, error) {
	if !d.ready {
		return nil, &detector.UpstreamError{
			Err: errors.New("vision API client not initialized, check ANTHROPIC_API_KEY"),
		}
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
	b64, err := imageproc.EncodeBase64JPEG(norm.Image)
	if err != nil {
		return nil, &detector.InvalidImageError{Err: err}
	}

	prompt := gridPrompt
	if d.mode == ModeFlat {
		prompt = flatPrompt
	}

	text, err := d.client.AnalyzeImage(ctx, b64, "image/jpeg", systemPrompt, prompt)
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, &detector.UpstreamError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, &detector.UpstreamError{Err: err}
	}

	var items []Item
	if d.mode == ModeFlat {
		items, err = parseFlat(text, threshold)
	} else {
		items, err = parseGrid(text, threshold)
	}
	if err != nil {
		log.Errorf("failed to parse vision response: %v, raw: %s", err, truncate(text, 500))
		return nil, &detector.ParseError{Raw: text, Err: err}
	}

	detections := make([]models.DetectedObject, 0, len(items))
	summary := make([]models.DetectionSummary, 0, len(items))
	for _, item := range items {
		detections = append(detections, models.DetectedObject{
			ClassName:   item.ClassName,
			ClassID:     0,
			Confidence:  item.Confidence,
			Description: item.Notes,
		})
		summary = append(summary, models.DetectionSummary{
			ClassName:       item.ClassName,
			Count:           item.Count,
			AvgConfidence:   item.Confidence,
			ConfidenceLevel: item.Level,
			Sections:        item.Sections,
			Notes:           item.Notes,
			NeedsReview:     item.NeedsReview,
		})
	}
	detector.SortByCount(summary)

	return &models.DetectionResponse{
		Success:          true,
		Detections:       detections,
		Summary:          summary,
		TotalObjects:     detector.TotalObjects(summary),
		ProcessingTimeMs: math.Round(float64(time.Since(start).Microseconds())/1000*10) / 10,
		ImageWidth:       norm.OrigWidth,
		ImageHeight:      norm.OrigHeight,
		ImagePreview:     b64,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
