// Package handlers wires the detection backend to the HTTP surface:
// upload validation, query parameters, error-to-status mapping.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/metrics"
	"inventory-detection-service/models"
	"inventory-detection-service/version"
)

// ServiceName identifies this service in health and version payloads.
const ServiceName = "inventory-detection-service"

// minUploadBytes rejects empty or truncated uploads before they reach
// a backend; no real image encodes below this.
const minUploadBytes = 100

// Handlers holds the dependencies of the HTTP handlers. The detector
// is constructed once at startup and shared across requests.
type Handlers struct {
	cfg *config.Config
	det detector.Detector
}

// New creates the HTTP handlers around a configured backend.
func New(cfg *config.Config, det detector.Detector) *Handlers {
	return &Handlers{cfg: cfg, det: det}
}

// Health reports service and model state. The service stays up with a
// degraded status when the backend failed to load.
func (h *Handlers) Health(c *gin.Context) {
	status := "healthy"
	if !h.det.Ready() {
		status = "error"
	}
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:      status,
		ModelLoaded: h.det.Ready(),
		ModelName:   h.det.ModelName(),
		Version:     version.BuildVersion,
	})
}

// Version returns build information.
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(ServiceName))
}

// Classes returns the backend's class taxonomy.
func (h *Handlers) Classes(c *gin.Context) {
	c.JSON(http.StatusOK, h.det.Classes())
}

// Detect handles POST /detect: a multipart image upload with optional
// confidence and filter_inventory query parameters.
func (h *Handlers) Detect(c *gin.Context) {
	start := time.Now()
	backend := h.cfg.Backend

	if !h.det.Ready() {
		metrics.DetectRequestsTotal.WithLabelValues(backend, "unavailable").Inc()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Detection backend not available",
		})
		return
	}

	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}

	content, ok := h.readUpload(c)
	if !ok {
		return
	}

	resp, err := h.det.Detect(c.Request.Context(), content, opts)
	elapsed := time.Since(start)
	metrics.DetectDurationSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())

	if err != nil {
		kind := errorKind(err)
		metrics.DetectRequestsTotal.WithLabelValues(backend, kind).Inc()
		if kind == "upstream_error" {
			metrics.UpstreamErrorsTotal.Inc()
		}
		log.WithField("request_id", c.GetString("request_id")).
			Errorf("detection failed (%s): %v", kind, err)
		c.JSON(http.StatusUnprocessableEntity, detector.FailureResponse(err, float64(elapsed.Milliseconds())))
		return
	}

	metrics.DetectRequestsTotal.WithLabelValues(backend, "success").Inc()
	metrics.DetectedObjectsTotal.Add(float64(resp.TotalObjects))
	c.JSON(http.StatusOK, resp)
}

// parseOptions validates the query parameters. A confidence outside
// [0.1, 1.0] is rejected the same way FastAPI-style validation would.
func (h *Handlers) parseOptions(c *gin.Context) (detector.Options, bool) {
	opts := detector.Options{FilterInventory: true}

	if raw := c.Query("confidence"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0.1 || value > 1.0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "confidence must be a number between 0.1 and 1.0",
			})
			return opts, false
		}
		opts.ConfidenceThreshold = value
	}

	if raw := c.Query("filter_inventory"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "filter_inventory must be a boolean",
			})
			return opts, false
		}
		opts.FilterInventory = value
	}

	return opts, true
}

// readUpload extracts and validates the multipart image field.
func (h *Handlers) readUpload(c *gin.Context) ([]byte, bool) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		metrics.UploadRejectedTotal.WithLabelValues("missing").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		metrics.UploadRejectedTotal.WithLabelValues("content_type").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid content type: " + contentType + ". Expected image/*",
		})
		return nil, false
	}

	maxBytes := h.cfg.MaxUploadBytes()
	if header.Size > maxBytes {
		metrics.UploadRejectedTotal.WithLabelValues("too_large").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Image too large. Maximum size is " + strconv.Itoa(h.cfg.MaxUploadMB) + "MB",
		})
		return nil, false
	}

	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		metrics.UploadRejectedTotal.WithLabelValues("read_error").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image upload"})
		return nil, false
	}
	if int64(len(content)) > maxBytes {
		metrics.UploadRejectedTotal.WithLabelValues("too_large").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "Image too large. Maximum size is " + strconv.Itoa(h.cfg.MaxUploadMB) + "MB",
		})
		return nil, false
	}
	if len(content) < minUploadBytes {
		metrics.UploadRejectedTotal.WithLabelValues("empty").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image file appears to be empty"})
		return nil, false
	}

	return content, true
}

func errorKind(err error) string {
	var invalidImage *detector.InvalidImageError
	var inference *detector.InferenceError
	var upstream *detector.UpstreamError
	var parse *detector.ParseError
	switch {
	case errors.As(err, &invalidImage):
		return "invalid_image"
	case errors.As(err, &inference):
		return "inference_error"
	case errors.As(err, &upstream):
		return "upstream_error"
	case errors.As(err, &parse):
		return "parse_error"
	}
	return "error"
}
