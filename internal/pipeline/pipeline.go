// Package pipeline drives a game through fetch, per-ply evaluation,
// grading, and aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"replaylens/internal/classify"
	"replaylens/internal/domain"
	"replaylens/internal/events"
	"replaylens/internal/lichess"
	"replaylens/internal/progress"
	"replaylens/internal/store"
)

// GameFetcher downloads a game and any evaluations embedded in its
// export, keyed by ply.
type GameFetcher interface {
	FetchGame(ctx context.Context, gameID string) (*domain.GameRecord, map[int]domain.EvaluationSample, error)
}

// Evaluator resolves the engine evaluation of a position.
type Evaluator interface {
	FetchCloudEval(ctx context.Context, fen string) (domain.EvaluationSample, error)
}

// ReportSink archives finished reports. Optional.
type ReportSink interface {
	UpsertReport(ctx context.Context, rep *domain.Report) error
}

// EventLog records lifecycle events. Optional.
type EventLog interface {
	Append(ctx context.Context, evtType, gameID string, payload events.Payload) error
}

// Runner owns one end-to-end analysis pipeline. Games, Evals, Store,
// and Progress are required; Archive and Events may be nil.
type Runner struct {
	Games         GameFetcher
	Evals         Evaluator
	Store         *store.Store
	Progress      *progress.Tracker
	Labels        classify.Labels
	FailureBudget int
	Archive       ReportSink
	Events        EventLog
	Log           *slog.Logger
	Now           func() time.Time
}

// Submit claims the game and starts an asynchronous run. It returns
// false when the game is already in flight or completed; the caller
// then polls the existing run instead.
func (r *Runner) Submit(ctx context.Context, gameID string) bool {
	if !r.Store.BeginIfAbsent(gameID) {
		return false
	}
	r.Progress.Begin(gameID)
	go func() {
		// the request context dies with the HTTP handler; the run must not
		runCtx := context.WithoutCancel(ctx)
		if _, err := r.Run(runCtx, gameID); err != nil && r.Log != nil {
			r.Log.Error("analysis failed", "game", gameID, "err", err)
		}
	}()
	return true
}

// Run performs the full analysis synchronously. The game must already
// be claimed in the store.
func (r *Runner) Run(ctx context.Context, gameID string) (*domain.Report, error) {
	r.append(ctx, "analysis.started", gameID, nil)

	r.Store.SetState(gameID, domain.StateLoading)
	r.Progress.SetState(gameID, domain.StateLoading)
	rec, pgnEvals, err := r.Games.FetchGame(ctx, gameID)
	if err != nil {
		return nil, r.fail(ctx, gameID, err)
	}

	r.Store.SetState(gameID, domain.StateAnalyzing)
	r.Progress.SetState(gameID, domain.StateAnalyzing)
	r.Progress.SetTotal(gameID, len(rec.Moves))

	evals, err := r.evaluate(ctx, gameID, rec, pgnEvals)
	if err != nil {
		return nil, r.fail(ctx, gameID, err)
	}

	now := r.Now
	if now == nil {
		now = time.Now
	}
	rep := &domain.Report{
		Game:        *rec,
		Evaluations: evals,
		Stats:       classify.ComputeStats(evals, r.Labels),
		CreatedAt:   now().UTC().Format(time.RFC3339),
	}
	r.Store.Complete(gameID, rep)
	r.Progress.Complete(gameID)
	if r.Archive != nil {
		if err := r.Archive.UpsertReport(ctx, rep); err != nil && r.Log != nil {
			r.Log.Warn("archive write failed", "game", gameID, "err", err)
		}
	}
	r.append(ctx, "analysis.completed", gameID, events.Payload{
		"plies":          len(rec.Moves),
		"white_accuracy": rep.Stats.White.Accuracy,
		"black_accuracy": rep.Stats.Black.Accuracy,
	})
	if r.Log != nil {
		r.Log.Info("analysis completed", "game", gameID, "plies", len(rec.Moves))
	}
	return rep, nil
}

// evaluate walks the plies in order. The sample after one ply is the
// sample before the next, so each position is fetched once.
func (r *Runner) evaluate(ctx context.Context, gameID string, rec *domain.GameRecord, pgnEvals map[int]domain.EvaluationSample) ([]domain.MoveEvaluation, error) {
	if len(rec.Moves) == 0 {
		return nil, nil
	}
	failures := 0
	sample := func(ply int, fen string) (domain.EvaluationSample, error) {
		if s, ok := pgnEvals[ply]; ok {
			return s, nil
		}
		s, err := r.Evals.FetchCloudEval(ctx, fen)
		if err == nil {
			return s, nil
		}
		failures++
		if failures > r.FailureBudget {
			return domain.EvaluationSample{}, fmt.Errorf("evaluation failures exceeded budget of %d: %w", r.FailureBudget, err)
		}
		if r.Log != nil {
			r.Log.Warn("evaluation failed, continuing", "game", gameID, "ply", ply, "err", err)
		}
		return domain.EvaluationSample{Absent: true}, nil
	}

	before, err := sample(0, rec.Moves[0].FENBefore)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MoveEvaluation, 0, len(rec.Moves))
	for _, mv := range rec.Moves {
		after, err := sample(mv.Ply, mv.FENAfter)
		if err != nil {
			return nil, err
		}
		dc, dm, cat := classify.Grade(mv.Side, &before, &after)
		ev := domain.MoveEvaluation{
			Ply:       mv.Ply,
			Side:      mv.Side,
			SAN:       mv.SAN,
			Before:    cloneSample(before),
			After:     cloneSample(after),
			DeltaCP:   dc,
			DeltaMate: dm,
			Category:  cat,
		}
		if before.Best != "" && before.Best != mv.UCI {
			ev.BestMove = bestMoveSAN(mv.FENBefore, before.Best)
		}
		ev.Summary = classify.Describe(ev.SAN, ev.Category, ev.DeltaCP, ev.DeltaMate, ev.BestMove)
		out = append(out, ev)
		r.Progress.Advance(gameID, mv.Ply)
		before = after
	}
	return out, nil
}

// bestMoveSAN converts the PV move to the notation the rest of the
// report uses. An undecodable move is reported as it came.
func bestMoveSAN(fen, uci string) string {
	san, err := lichess.SANFromUCI(fen, uci)
	if err != nil {
		return uci
	}
	return san
}

func cloneSample(s domain.EvaluationSample) *domain.EvaluationSample {
	c := s
	if s.CP != nil {
		v := *s.CP
		c.CP = &v
	}
	if s.Mate != nil {
		v := *s.Mate
		c.Mate = &v
	}
	return &c
}

// fail ends the run, keeping a reason the API can show to clients.
func (r *Runner) fail(ctx context.Context, gameID string, err error) error {
	reason := reasonFor(err)
	r.Store.Fail(gameID, reason)
	r.Progress.Fail(gameID, reason)
	r.append(ctx, "analysis.failed", gameID, events.Payload{"reason": reason})
	return err
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, lichess.ErrNotFound):
		return "game not found"
	case errors.Is(err, lichess.ErrBadGameID):
		return "invalid game id"
	case errors.Is(err, lichess.ErrMalformed):
		return "game could not be replayed"
	case errors.Is(err, lichess.ErrUnavailable):
		return "upstream unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "analysis canceled"
	default:
		return err.Error()
	}
}

func (r *Runner) append(ctx context.Context, evtType, gameID string, payload events.Payload) {
	if r.Events == nil {
		return
	}
	if err := r.Events.Append(ctx, evtType, gameID, payload); err != nil && r.Log != nil {
		r.Log.Warn("event append failed", "type", evtType, "game", gameID, "err", err)
	}
}
