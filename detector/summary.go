package detector

import (
	"sort"

	"inventory-detection-service/models"
)

// Summarize groups per-box detections by class name, computing count
// and mean confidence per group. Groups are ordered by descending
// count; ties keep first-encountered order.
func Summarize(detections []models.DetectedObject) []models.DetectionSummary {
	order := make([]string, 0)
	counts := make(map[string]int)
	confSums := make(map[string]float64)

	for _, d := range detections {
		if _, seen := counts[d.ClassName]; !seen {
			order = append(order, d.ClassName)
		}
		counts[d.ClassName]++
		confSums[d.ClassName] += d.Confidence
	}

	summaries := make([]models.DetectionSummary, 0, len(order))
	for _, name := range order {
		n := counts[name]
		summaries = append(summaries, models.DetectionSummary{
			ClassName:     name,
			Count:         n,
			AvgConfidence: confSums[name] / float64(n),
		})
	}
	SortByCount(summaries)
	return summaries
}

// SortByCount orders summaries by descending count. The sort is stable
// so equal counts keep their original order.
func SortByCount(summaries []models.DetectionSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Count > summaries[j].Count
	})
}

// TotalObjects sums the per-class counts, not the number of classes.
func TotalObjects(summaries []models.DetectionSummary) int {
	total := 0
	for _, s := range summaries {
		total += s.Count
	}
	return total
}
