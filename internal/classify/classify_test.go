package classify_test

import (
	"testing"

	"replaylens/internal/classify"
	"replaylens/internal/domain"
)

func cp(v int) *domain.EvaluationSample {
	return &domain.EvaluationSample{CP: &v}
}

func mate(n int) *domain.EvaluationSample {
	return &domain.EvaluationSample{Mate: &n}
}

func TestGradeCentipawnBuckets(t *testing.T) {
	cases := []struct {
		name   string
		before int
		after  int
		want   domain.MoveCategory
	}{
		{"zero swing", 20, 20, domain.CategoryAccurate},
		{"just under good", 0, 9, domain.CategoryAccurate},
		{"good lower bound", 0, -10, domain.CategoryGood},
		{"just under inaccuracy", 0, -49, domain.CategoryGood},
		{"inaccuracy lower bound", 0, -50, domain.CategoryInaccuracy},
		{"just under mistake", 0, -99, domain.CategoryInaccuracy},
		{"mistake lower bound", 0, -100, domain.CategoryMistake},
		{"just under blunder", 0, -299, domain.CategoryMistake},
		{"blunder lower bound", 0, -300, domain.CategoryBlunder},
		{"deep blunder", 150, -400, domain.CategoryBlunder},
	}
	for _, tc := range cases {
		dc, dm, cat := classify.Grade(domain.White, cp(tc.before), cp(tc.after))
		if cat != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, cat, tc.want)
		}
		if dc == nil || dm != nil {
			t.Errorf("%s: expected cp delta only", tc.name)
		}
	}
}

func TestGradeSignFlipsForBlack(t *testing.T) {
	// White dropping 175 centipawns is the same loss as the evaluation
	// rising 175 on black's move.
	before, after := cp(-5), cp(-180)
	dc, _, cat := classify.Grade(domain.White, before, after)
	if *dc != -175 || cat != domain.CategoryMistake {
		t.Fatalf("white: delta=%d cat=%s", *dc, cat)
	}
	dc, _, cat = classify.Grade(domain.Black, cp(-180), cp(40))
	if *dc != -220 {
		t.Fatalf("black delta: got %d want -220", *dc)
	}
	if cat != domain.CategoryMistake {
		t.Fatalf("black cat: got %s", cat)
	}
}

func TestGradeMatePrecedence(t *testing.T) {
	// A mate line appearing or vanishing overrides centipawn buckets.
	_, dm, cat := classify.Grade(domain.White, cp(250), mate(3))
	if dm == nil || *dm != 3 || cat != domain.CategoryGood {
		t.Fatalf("mate appears: dm=%v cat=%s", dm, cat)
	}
	_, dm, cat = classify.Grade(domain.White, mate(2), cp(500))
	if dm == nil || *dm >= 0 || cat != domain.CategoryBlunder {
		t.Fatalf("mate lost: dm=%v cat=%s", dm, cat)
	}
	_, dm, cat = classify.Grade(domain.Black, mate(-4), mate(-2))
	if *dm != 2 || cat != domain.CategoryGood {
		t.Fatalf("mate shortened: dm=%d cat=%s", *dm, cat)
	}
	_, dm, cat = classify.Grade(domain.White, mate(3), mate(3))
	if *dm != 0 || cat != domain.CategoryAccurate {
		t.Fatalf("mate held: dm=%d cat=%s", *dm, cat)
	}
}

func TestGradeUnavailable(t *testing.T) {
	absent := &domain.EvaluationSample{Absent: true}
	for _, pair := range [][2]*domain.EvaluationSample{
		{nil, cp(10)},
		{cp(10), nil},
		{absent, cp(10)},
		{cp(10), absent},
	} {
		dc, dm, cat := classify.Grade(domain.White, pair[0], pair[1])
		if cat != domain.CategoryUnavailable || dc != nil || dm != nil {
			t.Fatalf("expected unavailable, got %s", cat)
		}
	}
}

func TestComputeStats(t *testing.T) {
	evals := []domain.MoveEvaluation{
		{Ply: 1, Side: domain.White, Category: domain.CategoryAccurate},
		{Ply: 2, Side: domain.Black, Category: domain.CategoryAccurate},
		{Ply: 3, Side: domain.White, Category: domain.CategoryGood},
		{Ply: 4, Side: domain.Black, Category: domain.CategoryMistake},
		{Ply: 5, Side: domain.White, Category: domain.CategoryBlunder},
		{Ply: 6, Side: domain.Black, Category: domain.CategoryUnavailable},
	}
	stats := classify.ComputeStats(evals, classify.DefaultLabels())
	if stats.White.Moves != 3 || stats.Black.Moves != 3 {
		t.Fatalf("move totals: %+v", stats)
	}
	// white: (100+80+0)/3 = 60
	if stats.White.Accuracy != 60 {
		t.Fatalf("white accuracy: %v", stats.White.Accuracy)
	}
	// black: unavailable ply excluded, (100+30)/2 = 65
	if stats.Black.Accuracy != 65 {
		t.Fatalf("black accuracy: %v", stats.Black.Accuracy)
	}
	if stats.Black.Unavailable != 1 {
		t.Fatalf("black unavailable: %d", stats.Black.Unavailable)
	}
}

func TestLabelSelection(t *testing.T) {
	labels := classify.DefaultLabels()
	cases := []struct {
		evals []domain.MoveEvaluation
		want  string
	}{
		{repeat(domain.CategoryAccurate, 10), labels.ExcellentTxt},
		{append(repeat(domain.CategoryGood, 9), ev(domain.CategoryAccurate)), labels.GoodTxt},
		{append(repeat(domain.CategoryGood, 5), repeat(domain.CategoryInaccuracy, 5)...), labels.AverageTxt},
		{append(repeat(domain.CategoryBlunder, 3), repeat(domain.CategoryMistake, 2)...), labels.UnstableTxt},
		{append(repeat(domain.CategoryMistake, 5), repeat(domain.CategoryBlunder, 2)...), labels.WeakTxt},
	}
	for i, tc := range cases {
		stats := classify.ComputeStats(tc.evals, labels)
		if stats.White.Label != tc.want {
			t.Errorf("case %d: got %q want %q (accuracy %.1f)", i, stats.White.Label, tc.want, stats.White.Accuracy)
		}
	}
}

func TestDescribe(t *testing.T) {
	cp := func(v int) *int { return &v }
	cases := []struct {
		san   string
		cat   domain.MoveCategory
		dcp   *int
		dmate *int
		best  string
		want  string
	}{
		{"Qxf7", domain.CategoryBlunder, cp(-320), nil, "Nf3", "Qxf7 was a blunder (-320 cp); Nf3 was better"},
		{"e4", domain.CategoryAccurate, cp(5), nil, "", "e4 was accurate (+5 cp)"},
		{"Kg1", domain.CategoryBlunder, nil, cp(-999), "Rd8", "Kg1 was a blunder (-999 mate); Rd8 was better"},
		{"Nf3", domain.CategoryGood, cp(-12), nil, "Nf3", "Nf3 was good (-12 cp)"},
		{"a4", domain.CategoryUnavailable, nil, nil, "", "a4 could not be evaluated"},
	}
	for i, tc := range cases {
		got := classify.Describe(tc.san, tc.cat, tc.dcp, tc.dmate, tc.best)
		if got != tc.want {
			t.Errorf("case %d: got %q want %q", i, got, tc.want)
		}
	}
}

func ev(cat domain.MoveCategory) domain.MoveEvaluation {
	return domain.MoveEvaluation{Side: domain.White, Category: cat}
}

func repeat(cat domain.MoveCategory, n int) []domain.MoveEvaluation {
	out := make([]domain.MoveEvaluation, n)
	for i := range out {
		out[i] = ev(cat)
	}
	return out
}
