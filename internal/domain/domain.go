package domain

// Side identifies which color played a move.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// MoveCategory grades a single move by the evaluation swing it caused.
type MoveCategory string

const (
	CategoryAccurate    MoveCategory = "accurate"
	CategoryGood        MoveCategory = "good"
	CategoryInaccuracy  MoveCategory = "inaccuracy"
	CategoryMistake     MoveCategory = "mistake"
	CategoryBlunder     MoveCategory = "blunder"
	CategoryUnavailable MoveCategory = "unavailable"
)

// AnalysisState tracks a game through the pipeline.
type AnalysisState string

const (
	StatePending   AnalysisState = "pending"
	StateLoading   AnalysisState = "loading"
	StateAnalyzing AnalysisState = "analyzing"
	StateCompleted AnalysisState = "completed"
	StateError     AnalysisState = "error"
)

// Terminal reports whether the state can no longer change.
func (s AnalysisState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

type PlayerInfo struct {
	Name   string `json:"name"`
	Rating int    `json:"rating,omitempty"`
}

// EvaluationSample is an engine evaluation of one position. Exactly one
// of CP or Mate is set unless the position had no cloud evaluation, in
// which case Absent is true.
type EvaluationSample struct {
	CP     *int   `json:"cp,omitempty"`
	Mate   *int   `json:"mate,omitempty"`
	Depth  int    `json:"depth,omitempty"`
	Nodes  int    `json:"nodes,omitempty"`
	Best   string `json:"best,omitempty"`
	Absent bool   `json:"absent,omitempty"`
}

// Move is one ply of the game with the positions around it.
type Move struct {
	Ply       int    `json:"ply"`
	Number    int    `json:"number"`
	Side      Side   `json:"side" enum:"white,black"`
	SAN       string `json:"san"`
	UCI       string `json:"uci,omitempty"`
	FENBefore string `json:"fen_before"`
	FENAfter  string `json:"fen_after"`
}

type GameRecord struct {
	ID       string     `json:"id"`
	Site     string     `json:"site,omitempty"`
	White    PlayerInfo `json:"white"`
	Black    PlayerInfo `json:"black"`
	Result   string     `json:"result,omitempty"`
	Opening  string     `json:"opening,omitempty"`
	Speed    string     `json:"speed,omitempty"`
	PlayedAt string     `json:"played_at,omitempty"`
	Moves    []Move     `json:"moves"`
	PGN      string     `json:"pgn,omitempty"`
}

// MoveEvaluation pairs a ply with its graded evaluation swing.
type MoveEvaluation struct {
	Ply       int               `json:"ply"`
	Side      Side              `json:"side" enum:"white,black"`
	SAN       string            `json:"san"`
	Before    *EvaluationSample `json:"before,omitempty"`
	After     *EvaluationSample `json:"after,omitempty"`
	DeltaCP   *int              `json:"delta_cp,omitempty"`
	DeltaMate *int              `json:"delta_mate,omitempty"`
	BestMove  string            `json:"best_move,omitempty"`
	Summary   string            `json:"summary"`
	Category  MoveCategory      `json:"category" enum:"accurate,good,inaccuracy,mistake,blunder,unavailable"`
}

// PlayerStats aggregates graded moves for one side.
type PlayerStats struct {
	Moves        int     `json:"moves"`
	Accurate     int     `json:"accurate"`
	Good         int     `json:"good"`
	Inaccuracies int     `json:"inaccuracies"`
	Mistakes     int     `json:"mistakes"`
	Blunders     int     `json:"blunders"`
	Unavailable  int     `json:"unavailable"`
	Accuracy     float64 `json:"accuracy"`
	Label        string  `json:"label"`
}

type GameStats struct {
	White PlayerStats `json:"white"`
	Black PlayerStats `json:"black"`
}

// Progress is a client-facing snapshot of pipeline advancement.
type Progress struct {
	GameID    string        `json:"game_id"`
	State     AnalysisState `json:"state" enum:"pending,loading,analyzing,completed,error"`
	Done      int           `json:"done"`
	Total     int           `json:"total"`
	Percent   float64       `json:"percent"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt string        `json:"updated_at,omitempty" format:"date-time"`
}

// Report is the completed product of an analysis run.
type Report struct {
	Game        GameRecord       `json:"game"`
	Evaluations []MoveEvaluation `json:"evaluations"`
	Stats       GameStats        `json:"stats"`
	Summary     string           `json:"summary,omitempty"`
	CreatedAt   string           `json:"created_at,omitempty" format:"date-time"`
}

// Event is one row of the append-only analysis log.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	GameID  string `json:"game_id,omitempty"`
	Payload string `json:"payload_json"`
}

// EvaluationFor returns the graded evaluation of a ply, if present.
func (r *Report) EvaluationFor(ply int) (MoveEvaluation, bool) {
	for _, ev := range r.Evaluations {
		if ev.Ply == ply {
			return ev, true
		}
	}
	return MoveEvaluation{}, false
}
