// Package orientation decides whether a rendered document page must be
// rotated to an axis-aligned upright position before extraction runs. The
// selector fuses ink-density and edge-orientation structure signals with a
// projection-profile fallback, and refuses to rotate when the evidence is
// weak: a wrong rotation corrupts every downstream coordinate, so the policy
// is fail-closed.
package orientation

import (
	"image"
	"image/color"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the orientation package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// Candidate angles, degrees counter-clockwise.
var candidateAngles = [4]int{0, 90, 180, 270}

// Config holds the fusion and gating thresholds of the selector.
type Config struct {
	// InkWeight and EdgeWeight scale the two structure signals before they
	// are combined into the per-angle structure score.
	InkWeight  float64
	EdgeWeight float64

	// KernelRatio sets the length of the directional structuring elements
	// relative to the image dimension (minimum 10px).
	KernelRatio float64

	// ProjectionUncertaintyMargin is the structure-score margin below which
	// the projection-profile fallback is consulted; the fallback result is
	// adopted only when its own margin exceeds ProjectionSelectionMargin.
	ProjectionUncertaintyMargin float64
	ProjectionSelectionMargin   float64

	// RegularityWeight and TopHeavyWeight combine the projection profile's
	// band-regularity term with its top-heaviness term. Top-heaviness is the
	// tie-break between the two angles sharing an axis; it is configurable
	// policy rather than a hidden default.
	RegularityWeight float64
	TopHeavyWeight   float64

	// UprightTieBias nudges 0 and 180 ahead of the sideways angles when the
	// structure scores are exactly tied.
	UprightTieBias float64

	// StructureMinAbsScore and StructureMinScoreDelta are the guardrails for
	// sideways rotations: the winning structure score must clear an absolute
	// floor and beat the unrotated score by a minimum delta.
	StructureMinAbsScore   float64
	StructureMinScoreDelta float64

	// MinConfidence and MinMargin gate the fused, normalized candidate
	// scores. A rotation is applied only when the top candidate clears both.
	MinConfidence float64
	MinMargin     float64

	// MaxDeskewDegrees bounds the straightening pass that follows an
	// accepted rotation. Zero disables deskew.
	MaxDeskewDegrees float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		InkWeight:                   1.0,
		EdgeWeight:                  0.6,
		KernelRatio:                 0.06,
		ProjectionUncertaintyMargin: 5e-4,
		ProjectionSelectionMargin:   1e-4,
		RegularityWeight:            1.0,
		TopHeavyWeight:              0.25,
		UprightTieBias:              1e-4,
		StructureMinAbsScore:        5e-2,
		StructureMinScoreDelta:      1e-1,
		MinConfidence:               0.3,
		MinMargin:                   0.02,
		MaxDeskewDegrees:            3.0,
	}
}

// Decision is the outcome of one orientation selection.
type Decision struct {
	// Angle is the counter-clockwise rotation, one of 0/90/180/270, that
	// restores the page to upright.
	Angle int `json:"angle"`

	// Confidence and Margin are the fused top-candidate score and its lead
	// over the runner-up, both normalized to [0,1].
	Confidence float64 `json:"confidence"`
	Margin     float64 `json:"margin"`

	// Applied reports whether the rotation passed the confidence gate.
	Applied bool `json:"applied"`

	// Deskew is the small straightening angle in degrees, bounded by
	// Config.MaxDeskewDegrees, to apply on top of the gross rotation.
	Deskew float64 `json:"deskew"`

	// Method records which signal decided the angle: "structure",
	// "projection", or "none" when no rotation was accepted.
	Method string `json:"method"`
}

// Selector chooses page rotations. It is stateless and safe for concurrent
// use across pages.
type Selector struct {
	cfg Config
}

// NewSelector creates a selector with the given thresholds.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// angleScores holds the per-candidate signal results.
type angleScores struct {
	structure  [4]float64
	projection [4]float64
	fused      [4]float64
}

// Select scores the four candidate rotations and returns a decision.
// Degenerate input (empty image, zero ink) yields angle 0 with zero
// confidence; selection never fails with an error.
func (s *Selector) Select(img image.Image) Decision {
	none := Decision{Method: "none"}
	if img == nil {
		return none
	}
	bounds := img.Bounds()
	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return none
	}

	gray := grayFrom(img)
	scores := s.scoreAngles(gray)

	chosen, method := s.chooseAngle(scores)
	confidence, margin := normalizeScores(scores.fused, chosen)

	decision := Decision{
		Angle:      chosen,
		Confidence: confidence,
		Margin:     margin,
		Method:     method,
	}

	if chosen == 0 {
		return decision
	}
	if confidence < s.cfg.MinConfidence || margin < s.cfg.MinMargin {
		log.WithFields(logrus.Fields{
			"angle":      chosen,
			"confidence": confidence,
			"margin":     margin,
		}).Debug("Rotation suppressed by confidence gate")
		decision.Angle = 0
		decision.Method = "none"
		return decision
	}

	decision.Applied = true
	if s.cfg.MaxDeskewDegrees > 0 {
		rotated := rotateGray(gray, chosen)
		decision.Deskew = estimateSkew(binarize(rotated), s.cfg.MaxDeskewDegrees)
	}
	return decision
}

// scoreAngles runs the signal extractors for each virtual rotation of the
// preprocessed page.
func (s *Selector) scoreAngles(gray *image.Gray) angleScores {
	var scores angleScores
	for i, angle := range candidateAngles {
		rotated := rotateGray(gray, angle)
		bw := binarize(rotated)
		area := float64(bw.w * bw.h)

		hInk, vInk := inkScores(bw, s.cfg.KernelRatio)
		hEdge, vEdge := edgeScores(rotated)
		rowDev, colDev, topMoment := projectionScores(bw)

		scores.structure[i] = s.cfg.InkWeight*(hInk-vInk)/area +
			s.cfg.EdgeWeight*(hEdge-vEdge)/area
		scores.projection[i] = s.cfg.RegularityWeight*(rowDev-colDev) +
			s.cfg.TopHeavyWeight*topMoment
		scores.fused[i] = scores.structure[i] + scores.projection[i]
	}
	return scores
}

// chooseAngle picks the best candidate: structure scores first (with an
// upright tie bias), projection-profile fallback when the structure margin
// is inconclusive, then the sideways guardrails.
func (s *Selector) chooseAngle(scores angleScores) (int, string) {
	best := 0
	bestScore := scores.structure[0] + s.cfg.UprightTieBias
	for i := 1; i < 4; i++ {
		biased := scores.structure[i]
		if candidateAngles[i] == 180 {
			biased += s.cfg.UprightTieBias
		}
		if biased > bestScore {
			bestScore = biased
			best = i
		}
	}
	method := "structure"

	if structureMargin(scores.structure, best) < s.cfg.ProjectionUncertaintyMargin {
		projBest, projMargin := rankProjection(scores.projection)
		if projMargin > s.cfg.ProjectionSelectionMargin {
			best = projBest
			method = "projection"
		}
	}

	angle := candidateAngles[best]
	if angle == 90 || angle == 270 {
		raw := scores.structure[best]
		if raw < s.cfg.StructureMinAbsScore {
			log.WithField("angle", angle).Debug("Sideways rotation suppressed: low absolute score")
			return 0, "none"
		}
		if raw-scores.structure[0] < s.cfg.StructureMinScoreDelta {
			log.WithField("angle", angle).Debug("Sideways rotation suppressed: insufficient delta")
			return 0, "none"
		}
	}
	return angle, method
}

func structureMargin(structure [4]float64, best int) float64 {
	runnerUp := 0.0
	seeded := false
	for i, score := range structure {
		if i == best {
			continue
		}
		if !seeded || score > runnerUp {
			runnerUp = score
			seeded = true
		}
	}
	return structure[best] - runnerUp
}

func rankProjection(projection [4]float64) (best int, margin float64) {
	order := []int{0, 1, 2, 3}
	sort.SliceStable(order, func(a, b int) bool {
		return projection[order[a]] > projection[order[b]]
	})
	return order[0], projection[order[0]] - projection[order[1]]
}

// normalizeScores maps the fused candidate scores onto a comparable [0,1]
// scale: shift so the weakest candidate sits at zero, then divide by the
// total mass. A flat score vector (degenerate page) yields zero confidence.
func normalizeScores(fused [4]float64, chosenAngle int) (confidence, margin float64) {
	min := fused[0]
	for _, score := range fused[1:] {
		if score < min {
			min = score
		}
	}
	var shifted [4]float64
	sum := 0.0
	for i, score := range fused {
		shifted[i] = score - min
		sum += shifted[i]
	}
	if sum <= 0 {
		return 0, 0
	}

	chosen := 0
	for i, angle := range candidateAngles {
		if angle == chosenAngle {
			chosen = i
		}
	}
	confidence = shifted[chosen] / sum

	runnerUp := 0.0
	seeded := false
	for i := range shifted {
		if i == chosen {
			continue
		}
		if !seeded || shifted[i] > runnerUp {
			runnerUp = shifted[i]
			seeded = true
		}
	}
	margin = (shifted[chosen] - runnerUp) / sum
	if margin < 0 {
		margin = 0
	}
	return confidence, margin
}

// Apply performs the decided rotation and deskew on the page image. The
// returned image replaces the caller's buffer; the input is not modified.
func Apply(img image.Image, d Decision) image.Image {
	if !d.Applied {
		return img
	}
	out := img
	switch d.Angle {
	case 90:
		out = imaging.Rotate90(out)
	case 180:
		out = imaging.Rotate180(out)
	case 270:
		out = imaging.Rotate270(out)
	}
	if d.Deskew != 0 {
		out = imaging.Rotate(out, d.Deskew, color.White)
	}
	return out
}
