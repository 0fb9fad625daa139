package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-detection-service/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected string
	}{
		{
			name:     "bare JSON",
			response: `{"items": []}`,
			expected: `{"items": []}`,
		},
		{
			name:     "fenced with language tag",
			response: "```json\n{\"items\": []}\n```",
			expected: `{"items": []}`,
		},
		{
			name:     "fenced without language tag",
			response: "```\n{\"items\": []}\n```",
			expected: `{"items": []}`,
		},
		{
			name:     "JSON surrounded by prose",
			response: "Here is the result:\n{\"items\": []}\nLet me know if you need more.",
			expected: `{"items": []}`,
		},
		{
			name:     "whitespace padding",
			response: "\n\n  {\"items\": []}  \n",
			expected: `{"items": []}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractJSON(tt.response))
		})
	}
}

func TestParseGridReconciliation(t *testing.T) {
	tests := []struct {
		name          string
		response      string
		threshold     float64
		expectedCount int
	}{
		{
			name: "section sum wins over stated total",
			response: `{"items": [{
				"class_name": "cola can",
				"sections": {"top_left": 1, "top_center": 2},
				"total": 5,
				"confidence": "high"
			}]}`,
			threshold:     0.25,
			expectedCount: 3,
		},
		{
			name: "all-zero sections fall back to stated total",
			response: `{"items": [{
				"class_name": "cola can",
				"sections": {"top_left": 0},
				"total": 4,
				"confidence": "high"
			}]}`,
			threshold:     0.25,
			expectedCount: 4,
		},
		{
			name: "no sections and no total floors at one",
			response: `{"items": [{
				"class_name": "cola can",
				"confidence": "high"
			}]}`,
			threshold:     0.25,
			expectedCount: 1,
		},
		{
			name: "agreeing sections and total",
			response: `{"items": [{
				"class_name": "cola can",
				"sections": {"top_left": 2, "bottom_right": 2},
				"total": 4,
				"confidence": "high"
			}]}`,
			threshold:     0.25,
			expectedCount: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := parseGrid(tt.response, tt.threshold)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.expectedCount, items[0].Count)
		})
	}
}

func TestParseGridConfidenceFiltering(t *testing.T) {
	response := `{"items": [
		{"class_name": "kept", "total": 2, "confidence": "high"},
		{"class_name": "dropped", "total": 2, "confidence": "medium"}
	]}`

	items, err := parseGrid(response, 0.8)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "kept", items[0].ClassName)
	assert.InDelta(t, 0.95, items[0].Confidence, 1e-9)
}

func TestParseGridDefaultsAndReview(t *testing.T) {
	response := `{"items": [
		{"class_name": "no confidence", "total": 1},
		{"class_name": "weird level", "total": 1, "confidence": "certain"},
		{"class_name": "shaky", "total": 1, "confidence": "low"}
	]}`

	items, err := parseGrid(response, 0.1)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Absent or unknown levels default to medium.
	assert.Equal(t, "medium", items[0].Level)
	assert.InDelta(t, 0.75, items[0].Confidence, 1e-9)
	assert.Equal(t, "medium", items[1].Level)

	assert.Equal(t, "low", items[2].Level)
	assert.True(t, items[2].NeedsReview)
	assert.False(t, items[0].NeedsReview)
}

func TestParseGridSectionsPreserved(t *testing.T) {
	response := `{"items": [{
		"class_name": "cola can",
		"sections": {
			"top_left": 1, "top_center": 2, "top_right": 0,
			"middle_left": 0, "middle_center": 3, "middle_right": 0,
			"bottom_left": 0, "bottom_center": 0, "bottom_right": 1
		},
		"total": 7,
		"confidence": "high"
	}]}`

	items, err := parseGrid(response, 0.25)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Sections)
	assert.Equal(t, &models.SectionCounts{
		TopLeft: 1, TopCenter: 2, MiddleCenter: 3, BottomRight: 1,
	}, items[0].Sections)
	assert.Equal(t, 7, items[0].Count)
}

func TestParseGridInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "truncated JSON", response: `{"items": [{"class_name": "cola`},
		{name: "not JSON at all", response: "I could not process this image."},
		{name: "type mismatch", response: `{"items": [{"class_name": "x", "total": "many"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseGrid(tt.response, 0.25)
			assert.Error(t, err)
		})
	}
}

func TestParseGridEmptyItems(t *testing.T) {
	items, err := parseGrid(`{"items": []}`, 0.25)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseFlat(t *testing.T) {
	response := `{"items": [
		{"class_name": "cola can", "count": 6, "confidence": 0.9},
		{"class_name": "zero count", "count": 0, "confidence": 0.9},
		{"class_name": "missing count", "confidence": 0.9},
		{"class_name": "no confidence", "count": 2},
		{"class_name": "below threshold", "count": 2, "confidence": 0.2}
	]}`

	items, err := parseFlat(response, 0.4)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, 6, items[0].Count)

	// Zero and missing counts are floored at one: a reported item
	// implies at least one unit.
	assert.Equal(t, 1, items[1].Count)
	assert.Equal(t, 1, items[2].Count)

	// Missing confidence defaults to 0.5.
	assert.InDelta(t, 0.5, items[3].Confidence, 1e-9)
}
