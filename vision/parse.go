package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apex/log"

	"inventory-detection-service/models"
)

// confidenceLevelScores maps declared confidence levels to numeric
// scores used for threshold filtering.
var confidenceLevelScores = map[string]float64{
	"high":   0.95,
	"medium": 0.75,
	"low":    0.4,
}

// Item is a parsed, reconciled inventory item from the model output.
type Item struct {
	ClassName   string
	Count       int
	Confidence  float64
	Level       string
	Sections    *models.SectionCounts
	Notes       string
	NeedsReview bool
}

type gridItem struct {
	ClassName  string                `json:"class_name"`
	Sections   *models.SectionCounts `json:"sections"`
	Total      *int                  `json:"total"`
	Confidence string                `json:"confidence"`
	Notes      string                `json:"notes"`
}

type gridResponse struct {
	Items []gridItem `json:"items"`
}

type flatItem struct {
	ClassName  string   `json:"class_name"`
	Count      *int     `json:"count"`
	Confidence *float64 `json:"confidence"`
	Notes      string   `json:"notes"`
}

type flatResponse struct {
	Items []flatItem `json:"items"`
}

// parseGrid parses the grid-prompt response, filters by the numeric
// score of each item's confidence level and reconciles per-section
// counts against the stated total. When the nine sections sum to a
// positive value that disagrees with the total, the section sum wins:
// section-by-section counting is less error-prone than one holistic
// number. Without usable sections the stated total applies, floored at
// 1 because a reported item implies at least one unit.
func parseGrid(text string, confThreshold float64) ([]Item, error) {
	var resp gridResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, raw := range resp.Items {
		level := strings.ToLower(raw.Confidence)
		score, known := confidenceLevelScores[level]
		if !known {
			level = "medium"
			score = confidenceLevelScores[level]
		}
		if score < confThreshold {
			continue
		}

		stated := 0
		if raw.Total != nil {
			stated = *raw.Total
		}
		sectionSum := raw.Sections.Sum()

		var count int
		switch {
		case sectionSum > 0 && sectionSum != stated:
			log.Warnf("section sum %d != stated total %d for %q, using section sum",
				sectionSum, stated, raw.ClassName)
			count = sectionSum
		case sectionSum > 0:
			count = sectionSum
		default:
			count = stated
			if count < 1 {
				count = 1
			}
		}

		name := raw.ClassName
		if name == "" {
			name = "unknown"
		}
		items = append(items, Item{
			ClassName:   name,
			Count:       count,
			Confidence:  score,
			Level:       level,
			Sections:    raw.Sections,
			Notes:       raw.Notes,
			NeedsReview: level == "low",
		})
	}
	return items, nil
}

// parseFlat parses the flat-prompt response. Missing confidence
// defaults to 0.5; a zero or missing count is floored at 1.
func parseFlat(text string, confThreshold float64) ([]Item, error) {
	var resp flatResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, raw := range resp.Items {
		score := 0.5
		if raw.Confidence != nil {
			score = *raw.Confidence
		}
		if score < confThreshold {
			continue
		}

		count := 0
		if raw.Count != nil {
			count = *raw.Count
		}
		if count < 1 {
			count = 1
		}

		name := raw.ClassName
		if name == "" {
			name = "unknown"
		}
		items = append(items, Item{
			ClassName:  name,
			Count:      count,
			Confidence: score,
			Notes:      raw.Notes,
		})
	}
	return items, nil
}

// extractJSON strips a markdown code fence from the model output if
// present, otherwise falls back to the outermost JSON object.
func extractJSON(response string) string {
	cleaned := strings.TrimSpace(response)

	const marker = "```"
	startIdx := strings.Index(cleaned, marker)
	if startIdx == -1 {
		// No code block; try to find a JSON object directly.
		openIdx := strings.Index(cleaned, "{")
		closeIdx := strings.LastIndex(cleaned, "}")
		if openIdx == -1 || closeIdx < openIdx {
			return cleaned
		}
		return strings.TrimSpace(cleaned[openIdx : closeIdx+1])
	}

	endIdx := strings.Index(cleaned[startIdx+len(marker):], marker)
	if endIdx == -1 {
		return cleaned
	}
	endIdx += startIdx + len(marker)

	content := cleaned[startIdx+len(marker) : endIdx]

	// Drop a language identifier such as "json" on the fence line.
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if first == "json" || first == "" {
			content = strings.Join(lines[1:], "\n")
		}
	}
	return strings.TrimSpace(content)
}
