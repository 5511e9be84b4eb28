// Package classify grades moves by the evaluation swing between the
// position before and after, from the mover's point of view.
package classify

import (
	"fmt"
	"strings"

	"replaylens/internal/domain"
)

// mateLostDelta stands in for "a forced mate evaporated". It only has to
// sort below every centipawn threshold.
const mateLostDelta = -999

// Thresholds are the inclusive lower bounds of the centipawn buckets, in
// absolute swing.
const (
	ThresholdGood       = 10
	ThresholdInaccuracy = 50
	ThresholdMistake    = 100
	ThresholdBlunder    = 300
)

// Grade computes the deltas and category for one move. Either sample may
// be absent, in which case the move is graded unavailable.
func Grade(side domain.Side, before, after *domain.EvaluationSample) (deltaCP, deltaMate *int, cat domain.MoveCategory) {
	if before == nil || after == nil || before.Absent || after.Absent {
		return nil, nil, domain.CategoryUnavailable
	}

	// Mate lines take precedence over centipawn arithmetic.
	if before.Mate != nil || after.Mate != nil {
		var dm int
		switch {
		case before.Mate == nil:
			dm = *after.Mate
		case after.Mate == nil:
			dm = mateLostDelta
		default:
			dm = *after.Mate - *before.Mate
		}
		return nil, &dm, mateCategory(dm)
	}

	if before.CP == nil || after.CP == nil {
		return nil, nil, domain.CategoryUnavailable
	}

	// Evaluations are from white's perspective, so the mover's loss flips
	// sign for black.
	var dc int
	if side == domain.White {
		dc = *after.CP - *before.CP
	} else {
		dc = *before.CP - *after.CP
	}
	return &dc, nil, cpCategory(dc)
}

func mateCategory(delta int) domain.MoveCategory {
	switch {
	case delta < 0:
		return domain.CategoryBlunder
	case delta > 0:
		return domain.CategoryGood
	default:
		return domain.CategoryAccurate
	}
}

func cpCategory(delta int) domain.MoveCategory {
	loss := delta
	if loss < 0 {
		loss = -loss
	}
	switch {
	case loss < ThresholdGood:
		return domain.CategoryAccurate
	case loss < ThresholdInaccuracy:
		return domain.CategoryGood
	case loss < ThresholdMistake:
		return domain.CategoryInaccuracy
	case loss < ThresholdBlunder:
		return domain.CategoryMistake
	default:
		return domain.CategoryBlunder
	}
}

var categoryPhrase = map[domain.MoveCategory]string{
	domain.CategoryAccurate:    "was accurate",
	domain.CategoryGood:        "was good",
	domain.CategoryInaccuracy:  "was an inaccuracy",
	domain.CategoryMistake:     "was a mistake",
	domain.CategoryBlunder:     "was a blunder",
	domain.CategoryUnavailable: "could not be evaluated",
}

// Describe renders the one-line summary of a graded move, such as
// "Qxf7 was a blunder (-320 cp); Nf3 was better".
func Describe(san string, cat domain.MoveCategory, deltaCP, deltaMate *int, best string) string {
	var b strings.Builder
	b.WriteString(san)
	b.WriteString(" ")
	b.WriteString(categoryPhrase[cat])
	switch {
	case deltaMate != nil:
		fmt.Fprintf(&b, " (%+d mate)", *deltaMate)
	case deltaCP != nil:
		fmt.Fprintf(&b, " (%+d cp)", *deltaCP)
	}
	if best != "" && best != san {
		fmt.Fprintf(&b, "; %s was better", best)
	}
	return b.String()
}
