package media

import (
	"math"
	"strconv"
)

const (
	maxRenditions        = 5
	baseBitrate1080pKbps = 4500.0
	minBitrateKbps       = 320.0
	maxBitrateKbps       = 22000.0
)

// Rendition is a single rung of the adaptive ladder.
type Rendition struct {
	Name        string
	Width       int
	Height      int
	BitrateKbps int
	MaxrateKbps int
	BufsizeKbps int
}

var (
	ultrawideHeights  = []int{4320, 3200, 2560, 2160, 2000, 1600, 1440, 1080, 864, 720, 540, 432, 360}
	sixteenNineHeights = []int{4320, 2880, 2160, 1800, 1440, 1200, 1080, 900, 720, 540, 480, 360, 240}
	fourThreeHeights  = []int{2880, 2160, 1600, 1440, 1280, 1080, 960, 720, 540, 480, 360, 240}
	tallHeights       = []int{2160, 1920, 1600, 1440, 1200, 1080, 900, 720, 540, 480, 360, 240}
)

func baseHeightCandidates(g Geometry) []int {
	if g.Height <= 0 {
		return sixteenNineHeights
	}
	ratio := float64(g.Width) / float64(g.Height)
	switch {
	case ratio >= 2.1:
		return ultrawideHeights
	case ratio >= 1.55:
		return sixteenNineHeights
	case ratio >= 1.3:
		return fourThreeHeights
	default:
		return tallHeights
	}
}

// SelectRenditions plans the adaptive rendition ladder for a source of the
// given geometry.
func SelectRenditions(g Geometry) []Rendition {
	candidateSet := map[int]struct{}{}
	if g.Height > 0 {
		candidateSet[g.Height] = struct{}{}
	}
	for _, h := range baseHeightCandidates(g) {
		candidateSet[h] = struct{}{}
	}

	candidates := make([]int, 0, len(candidateSet))
	for h := range candidateSet {
		candidates = append(candidates, h)
	}
	sortDescending(candidates)

	aspect := 1.0
	if g.Height > 0 {
		aspect = float64(g.Width) / float64(g.Height)
	}

	var renditions []Rendition
	seen := map[[2]int]struct{}{}

	for _, rawHeight := range candidates {
		if rawHeight <= 0 || rawHeight > g.Height {
			continue
		}

		height := roundDownEven(rawHeight)
		if height < 2 {
			continue
		}

		width := int(math.Round(aspect * float64(height)))
		if width > g.Width {
			width = g.Width
		}
		width = roundDownEven(width)
		if width < 2 {
			continue
		}

		key := [2]int{width, height}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		bitrate, maxrate, bufsize := estimateBitrates(width, height)
		renditions = append(renditions, Rendition{
			Name:        formatRungName(height),
			Width:       width,
			Height:      height,
			BitrateKbps: bitrate,
			MaxrateKbps: maxrate,
			BufsizeKbps: bufsize,
		})

		if len(renditions) >= maxRenditions {
			break
		}
	}

	if len(renditions) == 0 {
		width := maxInt(roundDownEven(g.Width), 2)
		height := maxInt(roundDownEven(g.Height), 2)
		bitrate, maxrate, bufsize := estimateBitrates(width, height)
		renditions = append(renditions, Rendition{
			Name:        formatRungName(height),
			Width:       width,
			Height:      height,
			BitrateKbps: bitrate,
			MaxrateKbps: maxrate,
			BufsizeKbps: bufsize,
		})
	}

	sortRenditionsDescending(renditions)
	return renditions
}

func estimateBitrates(width, height int) (bitrate, maxrate, bufsize int) {
	pixels := float64(width) * float64(height)
	reference := 1920.0 * 1080.0
	b := baseBitrate1080pKbps * (pixels / reference)
	if math.IsNaN(b) || math.IsInf(b, 0) {
		b = baseBitrate1080pKbps
	}
	b = clampFloat(b, minBitrateKbps, maxBitrateKbps)
	return int(math.Round(b)), int(math.Ceil(b * 1.3)), int(math.Ceil(b * 2.5))
}

func roundDownEven(v int) int {
	if v%2 != 0 {
		v--
	}
	return v
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func formatRungName(height int) string {
	return strconv.Itoa(height) + "p"
}

func sortDescending(vals []int) {
	for i := 1; i < len(vals); i++ {
		for j := i; j > 0 && vals[j-1] < vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
}

func sortRenditionsDescending(renditions []Rendition) {
	for i := 1; i < len(renditions); i++ {
		for j := i; j > 0 && renditions[j-1].Height < renditions[j].Height; j-- {
			renditions[j-1], renditions[j] = renditions[j], renditions[j-1]
		}
	}
}
