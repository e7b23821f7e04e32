package ai

import (
	"image"
	"math"
	"sort"

	"detectserver/internal/model"
)

// ScoreFilter keeps only detections whose confidence is at least threshold.
func ScoreFilter(in []model.Detection, threshold float64) []model.Detection {
	out := make([]model.Detection, 0, len(in))
	for _, d := range in {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// decodeYOLO turns a raw [4+nc, N] (or transposed [N, 4+nc]) output into detections in
// frame pixel coordinates. Boxes are (cx, cy, w, h) relative to the network input size.
func decodeYOLO(data []float32, rows, cols int, scaleX, scaleY float64, threshold float64,
	bounds image.Rectangle, labels Labels) []model.Detection {
	attrs, n := rows, cols
	at := func(attr, i int) float64 { return float64(data[attr*n+i]) }
	if rows > cols {
		attrs, n = cols, rows
		at = func(attr, i int) float64 { return float64(data[i*attrs+attr]) }
	}
	if attrs < 5 || len(data) < attrs*n {
		return nil
	}

	var out []model.Detection
	for i := 0; i < n; i++ {
		classID, best := -1, 0.0
		for c := 4; c < attrs; c++ {
			if s := at(c, i); s > best {
				classID, best = c-4, s
			}
		}
		if classID < 0 || best < threshold {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		box := image.Rect(
			int(math.Round((cx-w/2)*scaleX)),
			int(math.Round((cy-h/2)*scaleY)),
			int(math.Round((cx+w/2)*scaleX)),
			int(math.Round((cy+h/2)*scaleY)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}

		out = append(out, model.Detection{
			Box:        box,
			Confidence: best,
			ClassID:    classID,
			Label:      labels.Name(classID),
		})
	}
	return out
}

// nonMaxSuppression drops boxes that overlap a higher-scoring box of the same class
// by more than iouThreshold.
func nonMaxSuppression(dets []model.Detection, iouThreshold float64) []model.Detection {
	sorted := make([]model.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	suppressed := make([]bool, len(sorted))
	var kept []model.Detection
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != sorted[i].ClassID {
				continue
			}
			if iou(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
