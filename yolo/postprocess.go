package yolo

import (
	"sort"
)

// iouEpsilon keeps the IoU denominator positive for zero-area boxes.
const iouEpsilon = 1e-7

// Candidate is one raw detection in original-image pixel coordinates.
type Candidate struct {
	ClassID    int
	Confidence float64
	X1, Y1     float64
	X2, Y2     float64
}

// DecodeOutput converts a raw YOLO output tensor, laid out as
// [1, 4+numClasses, n] with cx/cy/w/h rows first, into candidates in
// original-image coordinates. For each of the n candidates the class
// with the maximum score is selected with that score as confidence;
// candidates below confThreshold are dropped immediately, as are
// classes outside the allow-list when one is given. Box coordinates
// are unletterboxed (pad subtracted, scales divided out), clamped to
// the original bounds, and degenerate boxes under one pixel per side
// are discarded.
//
// normScale is the downscale the Normalizer applied before
// letterboxing; passing 1.0 means the letterboxed image was full size.
func DecodeOutput(output []float32, numClasses int, lb Letterbox, normScale float64, origW, origH int, confThreshold float64, allowlist map[int]bool) []Candidate {
	rows := 4 + numClasses
	n := len(output) / rows
	if n == 0 || len(output) != rows*n {
		return nil
	}
	if normScale <= 0 {
		normScale = 1.0
	}

	candidates := make([]Candidate, 0, 64)
	for i := 0; i < n; i++ {
		classID := 0
		best := float32(0)
		for j := 0; j < numClasses; j++ {
			if score := output[(4+j)*n+i]; score > best {
				best = score
				classID = j
			}
		}
		confidence := float64(best)
		if confidence < confThreshold {
			continue
		}
		if allowlist != nil && !allowlist[classID] {
			continue
		}

		cx := float64(output[i])
		cy := float64(output[n+i])
		w := float64(output[2*n+i])
		h := float64(output[3*n+i])

		// Model space -> original image space.
		x1 := (cx - w/2 - lb.PadX) / lb.Scale / normScale
		y1 := (cy - h/2 - lb.PadY) / lb.Scale / normScale
		x2 := (cx + w/2 - lb.PadX) / lb.Scale / normScale
		y2 := (cy + h/2 - lb.PadY) / lb.Scale / normScale

		x1 = clamp(x1, 0, float64(origW))
		y1 = clamp(y1, 0, float64(origH))
		x2 = clamp(x2, 0, float64(origW))
		y2 = clamp(y2, 0, float64(origH))

		if x2-x1 < 1 || y2-y1 < 1 {
			continue
		}

		candidates = append(candidates, Candidate{
			ClassID:    classID,
			Confidence: confidence,
			X1:         x1, Y1: y1, X2: x2, Y2: y2,
		})
	}
	return candidates
}

// NMS runs greedy per-class non-max suppression: candidates are
// stable-sorted by descending confidence, the best remaining one is
// kept, and every remaining candidate of the same class overlapping it
// above iouThreshold is dropped. Different classes never suppress each
// other; ties keep input order.
func NMS(candidates []Candidate, iouThreshold float64) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	kept := make([]Candidate, 0, len(ordered))
	suppressed := make([]bool, len(ordered))
	for i := range ordered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, ordered[i])
		for j := i + 1; j < len(ordered); j++ {
			if suppressed[j] || ordered[j].ClassID != ordered[i].ClassID {
				continue
			}
			if IoU(ordered[i], ordered[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func (a Candidate) area() float64 {
	return (a.X2 - a.X1) * (a.Y2 - a.Y1)
}

// IoU is the intersection-over-union overlap of two candidates.
func IoU(a, b Candidate) float64 {
	ix1 := maxf(a.X1, b.X1)
	iy1 := maxf(a.Y1, b.Y1)
	ix2 := minf(a.X2, b.X2)
	iy2 := minf(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	return inter / (a.area() + b.area() - inter + iouEpsilon)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
