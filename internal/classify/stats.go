package classify

import "replaylens/internal/domain"

// categoryScore maps a grade to its contribution to the accuracy score.
var categoryScore = map[domain.MoveCategory]float64{
	domain.CategoryAccurate:   100,
	domain.CategoryGood:       80,
	domain.CategoryInaccuracy: 60,
	domain.CategoryMistake:    30,
	domain.CategoryBlunder:    0,
}

// Labels holds the accuracy cutoffs used to phrase a player's overall
// performance. Cutoffs are inclusive.
type Labels struct {
	Excellent    float64 `yaml:"excellent" json:"excellent"`
	Good         float64 `yaml:"good" json:"good"`
	Average      float64 `yaml:"average" json:"average"`
	ExcellentTxt string  `yaml:"excellent_text" json:"excellent_text"`
	GoodTxt      string  `yaml:"good_text" json:"good_text"`
	AverageTxt   string  `yaml:"average_text" json:"average_text"`
	UnstableTxt  string  `yaml:"unstable_text" json:"unstable_text"`
	WeakTxt      string  `yaml:"weak_text" json:"weak_text"`
}

// DefaultLabels returns the stock performance phrasing.
func DefaultLabels() Labels {
	return Labels{
		Excellent:    90,
		Good:         80,
		Average:      70,
		ExcellentTxt: "excellent play",
		GoodTxt:      "good play",
		AverageTxt:   "average play",
		UnstableTxt:  "unstable play",
		WeakTxt:      "needs improvement",
	}
}

// ComputeStats aggregates graded moves into per-side tallies. Moves
// graded unavailable count toward the move total but not the accuracy
// score.
func ComputeStats(evals []domain.MoveEvaluation, labels Labels) domain.GameStats {
	var stats domain.GameStats
	white := tally(evals, domain.White)
	black := tally(evals, domain.Black)
	stats.White = finish(white, labels)
	stats.Black = finish(black, labels)
	return stats
}

func tally(evals []domain.MoveEvaluation, side domain.Side) domain.PlayerStats {
	var s domain.PlayerStats
	for _, ev := range evals {
		if ev.Side != side {
			continue
		}
		s.Moves++
		switch ev.Category {
		case domain.CategoryAccurate:
			s.Accurate++
		case domain.CategoryGood:
			s.Good++
		case domain.CategoryInaccuracy:
			s.Inaccuracies++
		case domain.CategoryMistake:
			s.Mistakes++
		case domain.CategoryBlunder:
			s.Blunders++
		default:
			s.Unavailable++
		}
	}
	return s
}

func finish(s domain.PlayerStats, labels Labels) domain.PlayerStats {
	scored := s.Moves - s.Unavailable
	if scored > 0 {
		total := categoryScore[domain.CategoryAccurate]*float64(s.Accurate) +
			categoryScore[domain.CategoryGood]*float64(s.Good) +
			categoryScore[domain.CategoryInaccuracy]*float64(s.Inaccuracies) +
			categoryScore[domain.CategoryMistake]*float64(s.Mistakes)
		s.Accuracy = total / float64(scored)
	}
	s.Label = labels.pick(s)
	return s
}

func (l Labels) pick(s domain.PlayerStats) string {
	switch {
	case s.Moves == s.Unavailable:
		return ""
	case s.Accuracy >= l.Excellent:
		return l.ExcellentTxt
	case s.Accuracy >= l.Good:
		return l.GoodTxt
	case s.Accuracy >= l.Average:
		return l.AverageTxt
	case s.Blunders > s.Mistakes:
		return l.UnstableTxt
	default:
		return l.WeakTxt
	}
}
