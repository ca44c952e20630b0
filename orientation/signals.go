package orientation

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// grayFrom converts an arbitrary image into a lightly denoised grayscale
// buffer, the common input of every signal extractor.
func grayFrom(img image.Image) *image.Gray {
	smoothed := imaging.Blur(imaging.Grayscale(img), 0.75)
	bounds := smoothed.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			// Grayscale output carries equal channels; red suffices.
			gray.Pix[y*gray.Stride+x] = smoothed.NRGBAAt(x, y).R
		}
	}
	return gray
}

// rotateGray rotates the buffer counter-clockwise by a 90-degree multiple.
func rotateGray(g *image.Gray, angle int) *image.Gray {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	switch angle % 360 {
	case 90:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				dst.Pix[y*dst.Stride+x] = g.Pix[x*g.Stride+(w-1-y)]
			}
		}
		return dst
	case 180:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				dst.Pix[y*dst.Stride+x] = g.Pix[(h-1-y)*g.Stride+(w-1-x)]
			}
		}
		return dst
	case 270:
		dst := image.NewGray(image.Rect(0, 0, h, w))
		for y := 0; y < w; y++ {
			for x := 0; x < h; x++ {
				dst.Pix[y*dst.Stride+x] = g.Pix[(h-1-x)*g.Stride+y]
			}
		}
		return dst
	default:
		return g
	}
}

// bitmap is a 1-bit ink mask: 1 marks stroke pixels after thresholding.
type bitmap struct {
	w, h int
	pix  []uint8
}

func (b *bitmap) at(x, y int) uint8 { return b.pix[y*b.w+x] }

// adaptiveBlock chooses an odd threshold window proportional to the smaller
// image dimension.
func adaptiveBlock(w, h int) int {
	min := w
	if h < min {
		min = h
	}
	block := min / 24
	if block < 15 {
		block = 15
	}
	if block%2 == 0 {
		block++
	}
	return block
}

// binarize applies an inverted adaptive mean threshold so that dark strokes
// on a light page become 1-pixels. The local mean is computed with a summed
// area table; the window is clamped at the borders.
func binarize(g *image.Gray) *bitmap {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	bw := &bitmap{w: w, h: h, pix: make([]uint8, w*h)}
	if w == 0 || h == 0 {
		return bw
	}

	// Summed area table with a one-row/one-column zero border.
	sat := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(g.Pix[y*g.Stride+x])
			sat[(y+1)*(w+1)+(x+1)] = sat[y*(w+1)+(x+1)] + rowSum
		}
	}

	const offset = 10
	half := adaptiveBlock(w, h) / 2
	for y := 0; y < h; y++ {
		y0, y1 := y-half, y+half+1
		if y0 < 0 {
			y0 = 0
		}
		if y1 > h {
			y1 = h
		}
		for x := 0; x < w; x++ {
			x0, x1 := x-half, x+half+1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > w {
				x1 = w
			}
			area := int64((y1 - y0) * (x1 - x0))
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			mean := sum / area
			if int64(g.Pix[y*g.Stride+x]) < mean-offset {
				bw.pix[y*w+x] = 1
			}
		}
	}
	return bw
}

// inkScores measures horizontal versus vertical stroke ink via a directional
// morphological opening with long structuring elements. Opening a binary
// image with a 1×k element keeps exactly the pixels belonging to runs of
// length >= k, so the score reduces to run-length accounting.
func inkScores(bw *bitmap, kernelRatio float64) (horiz, vert float64) {
	kx := int(kernelRatio * float64(bw.w))
	if kx < 10 {
		kx = 10
	}
	ky := int(kernelRatio * float64(bw.h))
	if ky < 10 {
		ky = 10
	}

	for y := 0; y < bw.h; y++ {
		run := 0
		for x := 0; x <= bw.w; x++ {
			if x < bw.w && bw.at(x, y) == 1 {
				run++
				continue
			}
			if run >= kx {
				horiz += float64(run)
			}
			run = 0
		}
	}
	for x := 0; x < bw.w; x++ {
		run := 0
		for y := 0; y <= bw.h; y++ {
			if y < bw.h && bw.at(x, y) == 1 {
				run++
				continue
			}
			if run >= ky {
				vert += float64(run)
			}
			run = 0
		}
	}
	return horiz, vert
}

// edgeScores accumulates Sobel gradient energy in two angular bins.
// Horizontal strokes produce vertical gradients (angle near 90°), vertical
// strokes horizontal ones (near 0°/180°); each contribution is weighted by
// gradient magnitude.
func edgeScores(g *image.Gray) (horiz, vert float64) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	if w < 3 || h < 3 {
		return 0, 0
	}
	px := func(x, y int) float64 {
		return float64(g.Pix[y*g.Stride+x]) / 255.0
	}
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := (px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x-1, y) + px(x-1, y+1))
			gy := (px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x, y-1) + px(x+1, y-1))
			mag := math.Sqrt(gx*gx + gy*gy)
			if mag < 1e-6 {
				continue
			}
			ang := math.Mod(math.Atan2(gy, gx)*180.0/math.Pi+180.0, 180.0)
			switch {
			case ang > 65 && ang < 115:
				horiz += mag
			case ang < 25 || ang > 155:
				vert += mag
			}
		}
	}
	return horiz, vert
}

// projectionScores evaluates the regularity of the ink projection profiles.
// Text pages at the upright angle show strong row-sum variation (bands of
// text separated by blank line gaps) and a top-heavy ink distribution
// (headings and captions sit high on the page); both terms are returned so
// the selector can weight them independently.
func projectionScores(bw *bitmap) (rowDev, colDev, topMoment float64) {
	if bw.w == 0 || bw.h == 0 {
		return 0, 0, 0
	}
	rows := make([]float64, bw.h)
	cols := make([]float64, bw.w)
	for y := 0; y < bw.h; y++ {
		for x := 0; x < bw.w; x++ {
			if bw.at(x, y) == 1 {
				rows[y]++
				cols[x]++
			}
		}
	}
	totalInk := 0.0
	for y, sum := range rows {
		rows[y] = sum / float64(bw.w)
		totalInk += sum
	}
	for x, sum := range cols {
		cols[x] = sum / float64(bw.h)
	}

	rowDev = stddev(rows)
	colDev = stddev(cols)

	if totalInk > 0 && bw.h > 1 {
		weighted := 0.0
		for y, sum := range rows {
			// Linear weight: +1 at the top edge, -1 at the bottom.
			weight := 1.0 - 2.0*float64(y)/float64(bw.h-1)
			weighted += sum * float64(bw.w) * weight
		}
		topMoment = weighted / totalInk
	}
	return rowDev, colDev, topMoment
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
