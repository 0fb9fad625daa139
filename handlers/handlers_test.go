package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-detection-service/config"
	"inventory-detection-service/detector"
	"inventory-detection-service/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeDetector scripts the backend behavior per test.
type fakeDetector struct {
	ready    bool
	response *models.DetectionResponse
	err      error
	lastOpts detector.Options
}

func (f *fakeDetector) Detect(ctx context.Context, imageData []byte, opts detector.Options) (*models.DetectionResponse, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func (f *fakeDetector) Ready() bool          { return f.ready }
func (f *fakeDetector) ModelName() string    { return "fake" }
func (f *fakeDetector) Close() error         { return nil }
func (f *fakeDetector) Classes() models.ClassesResponse {
	return models.ClassesResponse{Note: "fake"}
}

func testConfig() *config.Config {
	return &config.Config{
		Backend:     "stub",
		MaxUploadMB: 10,
	}
}

func newRouter(cfg *config.Config, det detector.Detector) *gin.Engine {
	h := New(cfg, det)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/version", h.Version)
	router.GET("/classes", h.Classes)
	router.POST("/detect", h.Detect)
	return router
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	return buf.Bytes()
}

// multipartImage builds an upload with an explicit part content type.
func multipartImage(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func postDetect(t *testing.T, router *gin.Engine, url string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, url, body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthReady(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.True(t, resp.ModelLoaded)
	assert.Equal(t, "fake", resp.ModelName)
}

func TestHealthDegraded(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: false})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	// The endpoint itself stays 200; the body reports the failure.
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.ModelLoaded)
}

func TestDetectSuccess(t *testing.T) {
	det := &fakeDetector{
		ready: true,
		response: &models.DetectionResponse{
			Success:      true,
			Detections:   []models.DetectedObject{{ClassName: "bottle", Confidence: 0.9}},
			Summary:      []models.DetectionSummary{{ClassName: "bottle", Count: 1, AvgConfidence: 0.9}},
			TotalObjects: 1,
			ImageWidth:   32,
			ImageHeight:  32,
		},
	}
	router := newRouter(testConfig(), det)

	body, ct := multipartImage(t, "image", "shelf.png", "image/png", pngBytes(t))
	w := postDetect(t, router, "/detect", body, ct)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.DetectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.TotalObjects)

	// Inventory filtering defaults on.
	assert.True(t, det.lastOpts.FilterInventory)
	assert.Equal(t, 0.0, det.lastOpts.ConfidenceThreshold)
}

func TestDetectQueryParameters(t *testing.T) {
	det := &fakeDetector{ready: true, response: &models.DetectionResponse{Success: true}}
	router := newRouter(testConfig(), det)

	body, ct := multipartImage(t, "image", "shelf.png", "image/png", pngBytes(t))
	w := postDetect(t, router, "/detect?confidence=0.6&filter_inventory=false", body, ct)

	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.6, det.lastOpts.ConfidenceThreshold, 1e-9)
	assert.False(t, det.lastOpts.FilterInventory)
}

func TestDetectInvalidQueryParameters(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "confidence too low", query: "?confidence=0.05"},
		{name: "confidence too high", query: "?confidence=1.5"},
		{name: "confidence not a number", query: "?confidence=high"},
		{name: "filter not a boolean", query: "?filter_inventory=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(testConfig(), &fakeDetector{ready: true, response: &models.DetectionResponse{}})
			body, ct := multipartImage(t, "image", "shelf.png", "image/png", pngBytes(t))
			w := postDetect(t, router, "/detect"+tt.query, body, ct)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDetectMissingFile(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true, response: &models.DetectionResponse{}})

	body, ct := multipartImage(t, "photo", "shelf.png", "image/png", pngBytes(t))
	w := postDetect(t, router, "/detect", body, ct)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetectRejectsNonImageContentType(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true, response: &models.DetectionResponse{}})

	body, ct := multipartImage(t, "image", "notes.txt", "text/plain", pngBytes(t))
	w := postDetect(t, router, "/detect", body, ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid content type")
}

func TestDetectRejectsTinyUpload(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true, response: &models.DetectionResponse{}})

	body, ct := multipartImage(t, "image", "shelf.png", "image/png", []byte("tiny"))
	w := postDetect(t, router, "/detect", body, ct)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "empty")
}

func TestDetectRejectsOversizedUpload(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadMB = 1
	router := newRouter(cfg, &fakeDetector{ready: true, response: &models.DetectionResponse{}})

	big := make([]byte, 2*1024*1024)
	body, ct := multipartImage(t, "image", "shelf.png", "image/png", big)
	w := postDetect(t, router, "/detect", body, ct)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestDetectBackendNotReady(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: false})

	body, ct := multipartImage(t, "image", "shelf.png", "image/png", pngBytes(t))
	w := postDetect(t, router, "/detect", body, ct)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDetectFailureEnvelope(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "invalid image", err: &detector.InvalidImageError{Err: errors.New("bad bytes")}},
		{name: "inference failure", err: &detector.InferenceError{Err: errors.New("session crashed")}},
		{name: "upstream failure", err: &detector.UpstreamError{StatusCode: 500, Err: errors.New("api down")}},
		{name: "parse failure", err: &detector.ParseError{Raw: "oops", Err: errors.New("bad json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(testConfig(), &fakeDetector{ready: true, err: tt.err})
			body, ct := multipartImage(t, "image", "shelf.png", "image/png", pngBytes(t))
			w := postDetect(t, router, "/detect", body, ct)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
			var resp models.DetectionResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Empty(t, resp.Detections)
			assert.Empty(t, resp.Summary)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestClasses(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/classes", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ClassesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "fake", resp.Note)
}

func TestVersion(t *testing.T) {
	router := newRouter(testConfig(), &fakeDetector{ready: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ServiceName)
}
