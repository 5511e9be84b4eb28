// Package progress tracks per-game analysis advancement for polling
// clients.
package progress

import (
	"fmt"
	"sync"
	"time"

	"replaylens/internal/domain"
)

// Tracker holds the progress of every game seen by the process. It is
// safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	games map[string]*entry
	now   func() time.Time
}

type entry struct {
	state domain.AnalysisState
	done  int
	total int
	err   string
	ts    time.Time
}

func NewTracker() *Tracker {
	return &Tracker{games: make(map[string]*entry), now: time.Now}
}

// Begin registers a game in the pending state. Terminal games are
// reset so a re-analysis starts clean.
func (t *Tracker) Begin(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.games[gameID] = &entry{state: domain.StatePending, ts: t.now()}
}

// SetState moves a game to a new lifecycle state. Terminal states are
// sticky, except that Begin resets them.
func (t *Tracker) SetState(gameID string, state domain.AnalysisState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.games[gameID]
	if !ok || e.state.Terminal() {
		return
	}
	e.state = state
	e.ts = t.now()
}

// SetTotal records how many plies the run will evaluate.
func (t *Tracker) SetTotal(gameID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.games[gameID]; ok {
		e.total = total
		e.ts = t.now()
	}
}

// Advance bumps the done counter. Progress never moves backward.
func (t *Tracker) Advance(gameID string, done int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.games[gameID]
	if !ok || e.state.Terminal() || done <= e.done {
		return
	}
	e.done = done
	e.ts = t.now()
}

// Complete marks a run finished with all plies accounted for.
func (t *Tracker) Complete(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.games[gameID]
	if !ok || e.state.Terminal() {
		return
	}
	e.state = domain.StateCompleted
	e.done = e.total
	e.ts = t.now()
}

// Fail marks a run failed with a client-facing reason.
func (t *Tracker) Fail(gameID string, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.games[gameID]
	if !ok || e.state.Terminal() {
		return
	}
	e.state = domain.StateError
	e.err = reason
	e.ts = t.now()
}

// Get returns a snapshot of a game's progress.
func (t *Tracker) Get(gameID string) (domain.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.games[gameID]
	if !ok {
		return domain.Progress{}, false
	}
	p := domain.Progress{
		GameID:    gameID,
		State:     e.state,
		Done:      e.done,
		Total:     e.total,
		Error:     e.err,
		UpdatedAt: e.ts.UTC().Format(time.RFC3339),
	}
	if e.total > 0 {
		p.Percent = 100 * float64(e.done) / float64(e.total)
	} else if e.state == domain.StateCompleted {
		p.Percent = 100
	}
	p.Message = message(e)
	return p, true
}

func message(e *entry) string {
	switch e.state {
	case domain.StatePending:
		return "waiting to start"
	case domain.StateLoading:
		return "fetching game"
	case domain.StateAnalyzing:
		if e.total > 0 {
			return fmt.Sprintf("evaluating move %d of %d", e.done, e.total)
		}
		return "evaluating moves"
	case domain.StateCompleted:
		return "analysis complete"
	case domain.StateError:
		return e.err
	}
	return ""
}
