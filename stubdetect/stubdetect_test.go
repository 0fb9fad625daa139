package stubdetect

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-detection-service/detector"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	return buf.Bytes()
}

func TestStubIsDeterministic(t *testing.T) {
	d := New(1280)
	data := testImage(t)

	first, err := d.Detect(context.Background(), data, detector.Options{})
	require.NoError(t, err)
	second, err := d.Detect(context.Background(), data, detector.Options{})
	require.NoError(t, err)

	assert.Equal(t, first.Detections, second.Detections)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.TotalObjects, second.TotalObjects)
}

func TestStubEnvelope(t *testing.T) {
	d := New(1280)

	resp, err := d.Detect(context.Background(), testImage(t), detector.Options{})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, 20, resp.ImageWidth)
	assert.Equal(t, 10, resp.ImageHeight)
	assert.NotEmpty(t, resp.Detections)
	assert.Equal(t, len(resp.Detections), resp.TotalObjects)
	assert.True(t, d.Ready())
}

func TestStubInvalidImage(t *testing.T) {
	d := New(1280)

	_, err := d.Detect(context.Background(), []byte("junk"), detector.Options{})
	var invalid *detector.InvalidImageError
	assert.True(t, errors.As(err, &invalid))
}
