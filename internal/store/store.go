// Package store keeps the analyses known to the process, deduplicates
// concurrent submissions, and hands out finished reports.
package store

import (
	"errors"
	"sync"

	"replaylens/internal/domain"
)

var (
	// ErrNotFound means the game was never submitted.
	ErrNotFound = errors.New("analysis not found")
	// ErrNotReady means the analysis is still in flight.
	ErrNotReady = errors.New("analysis not ready")
)

type run struct {
	state  domain.AnalysisState
	report *domain.Report
	err    string
}

// Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	runs map[string]*run
}

func New() *Store {
	return &Store{runs: make(map[string]*run)}
}

// BeginIfAbsent claims a game for analysis. It returns false when a run
// is already in flight or completed, so the same game is never analyzed
// twice concurrently. A previous failed run may be claimed again.
func (s *Store) BeginIfAbsent(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[gameID]; ok && r.state != domain.StateError {
		return false
	}
	s.runs[gameID] = &run{state: domain.StatePending}
	return true
}

// SetState advances the run's lifecycle state. Terminal runs keep
// their state.
func (s *Store) SetState(gameID string, state domain.AnalysisState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[gameID]; ok && !r.state.Terminal() {
		r.state = state
	}
}

// Complete stores the finished report. Nothing is stored for a run
// that already ended.
func (s *Store) Complete(gameID string, report *domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[gameID]
	if !ok || r.state.Terminal() {
		return
	}
	r.state = domain.StateCompleted
	r.report = report
}

// Fail ends the run with a reason and discards any partial data.
func (s *Store) Fail(gameID string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[gameID]
	if !ok || r.state.Terminal() {
		return
	}
	r.state = domain.StateError
	r.err = reason
	r.report = nil
}

// State reports the lifecycle state of a game.
func (s *Store) State(gameID string) (domain.AnalysisState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[gameID]
	if !ok {
		return "", false
	}
	return r.state, true
}

// FailureReason returns the stored error of a failed run.
func (s *Store) FailureReason(gameID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[gameID]; ok {
		return r.err
	}
	return ""
}

// Report returns the finished report, ErrNotReady while the run is in
// flight, or ErrNotFound when the game was never submitted or failed.
func (s *Store) Report(gameID string) (*domain.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	switch r.state {
	case domain.StateCompleted:
		return r.report, nil
	case domain.StateError:
		return nil, ErrNotFound
	default:
		return nil, ErrNotReady
	}
}

// Summary returns the memoized narrative for a completed run.
func (s *Store) Summary(gameID string) (string, error) {
	r, err := s.Report(gameID)
	if err != nil {
		return "", err
	}
	return r.Summary, nil
}

// SetSummary memoizes the narrative so the language model is consulted
// once per game.
func (s *Store) SetSummary(gameID, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.runs[gameID]; ok && r.report != nil {
		r.report.Summary = summary
	}
}
