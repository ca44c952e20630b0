package orientation

import "math"

// estimateSkew finds the small residual rotation, bounded by maxDeg, that
// straightens near-horizontal content after the gross rotation has been
// applied. It sweeps candidate angles and keeps the one whose sheared row
// projection is sharpest (text baselines collapse into narrow bands when
// the shear matches the skew). Angles below 0.1° are treated as already
// straight.
func estimateSkew(bw *bitmap, maxDeg float64) float64 {
	if maxDeg <= 0 || bw.w < 2 || bw.h < 2 {
		return 0
	}

	// Collect ink coordinates once; cap the sample to bound the sweep cost
	// on dense pages.
	const maxSamples = 200000
	type point struct{ x, y int }
	points := make([]point, 0, 4096)
	stride := 1
	total := 0
	for _, v := range bw.pix {
		total += int(v)
	}
	if total > maxSamples {
		stride = total/maxSamples + 1
	}
	seen := 0
	for y := 0; y < bw.h; y++ {
		for x := 0; x < bw.w; x++ {
			if bw.at(x, y) == 0 {
				continue
			}
			if seen%stride == 0 {
				points = append(points, point{x, y})
			}
			seen++
		}
	}
	if len(points) < 32 {
		return 0
	}

	const step = 0.25
	profile := make([]float64, bw.h)
	sharpness := func(deg float64) float64 {
		for i := range profile {
			profile[i] = 0
		}
		slope := math.Tan(deg * math.Pi / 180.0)
		for _, p := range points {
			row := p.y + int(math.Round(float64(p.x)*slope))
			if row >= 0 && row < bw.h {
				profile[row]++
			}
		}
		score := 0.0
		for _, v := range profile {
			score += v * v
		}
		return score
	}

	baseline := sharpness(0)
	bestDeg, bestScore := 0.0, baseline
	for deg := -maxDeg; deg <= maxDeg+1e-9; deg += step {
		if math.Abs(deg) < step/2 {
			continue
		}
		if score := sharpness(deg); score > bestScore {
			bestScore = score
			bestDeg = deg
		}
	}

	// Require a real improvement before rotating at all.
	if bestScore < baseline*1.02 || math.Abs(bestDeg) < 0.1 {
		return 0
	}
	return bestDeg
}
