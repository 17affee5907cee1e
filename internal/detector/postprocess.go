package detector

import (
	"fmt"
	"sort"

	"github.com/MeKo-Tech/titlecam/internal/geometry"
)

// Detection is a single decoded model output row.
type Detection struct {
	Box   geometry.Rect
	Score float64
	Class int
}

// DecodeRows turns a [1, N, K] output tensor (K = 5 or 6) into detections.
// Rows are x1, y1, x2, y2, score[, class] in input pixels of a size x size
// image. Rows under minScore and degenerate boxes are skipped.
func DecodeRows(data []float32, shape []int64, size int, minScore float64) ([]Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected [1, N, K] output, got %v", shape)
	}
	n, k := int(shape[1]), int(shape[2])
	if k != 5 && k != 6 {
		return nil, fmt.Errorf("expected 5 or 6 values per row, got %d", k)
	}
	if len(data) < n*k {
		return nil, fmt.Errorf("output has %d values, shape %v needs %d", len(data), shape, n*k)
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid input size %d", size)
	}

	s := float64(size)
	out := make([]Detection, 0, n)
	for i := range n {
		row := data[i*k : (i+1)*k]
		score := float64(row[4])
		if score < minScore {
			continue
		}
		x1, y1 := float64(row[0])/s, float64(row[1])/s
		x2, y2 := float64(row[2])/s, float64(row[3])/s
		box := geometry.NewRect(x1, y1, x2-x1, y2-y1).Clamp()
		if box.IsEmpty() {
			continue
		}
		d := Detection{Box: box, Score: score}
		if k == 6 {
			d.Class = int(row[5])
		}
		out = append(out, d)
	}
	return out, nil
}

// Suppress keeps the highest scoring detections, dropping any detection that
// overlaps an already kept one by more than iouThreshold. At most
// maxDetections are returned (0 means no limit), sorted by score.
func Suppress(dets []Detection, iouThreshold float64, maxDetections int) []Detection {
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		if maxDetections > 0 && len(kept) >= maxDetections {
			break
		}
		overlaps := false
		for _, k := range kept {
			if d.Box.IoU(k.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}

// Boxes extracts the rectangles, keeping order.
func Boxes(dets []Detection) []geometry.Rect {
	out := make([]geometry.Rect, len(dets))
	for i, d := range dets {
		out[i] = d.Box
	}
	return out
}

// filterClasses drops detections whose class is not in allowed. An empty
// allow list keeps everything.
func filterClasses(dets []Detection, allowed []int) []Detection {
	if len(allowed) == 0 {
		return dets
	}
	ok := make(map[int]bool, len(allowed))
	for _, c := range allowed {
		ok[c] = true
	}
	out := dets[:0]
	for _, d := range dets {
		if ok[d.Class] {
			out = append(out, d)
		}
	}
	return out
}
