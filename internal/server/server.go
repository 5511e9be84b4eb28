// Package server exposes the analysis HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"replaylens/internal/capture"
	"replaylens/internal/domain"
	"replaylens/internal/lichess"
	"replaylens/internal/pipeline"
	"replaylens/internal/progress"
	"replaylens/internal/repo"
	"replaylens/internal/store"
	"replaylens/internal/summary"
)

// Summarizer produces the natural language review of a report.
type Summarizer interface {
	Generate(ctx context.Context, rep *domain.Report) (string, error)
}

// Capturer renders a position through the capture service.
type Capturer interface {
	Capture(ctx context.Context, fen string, ply int) (string, error)
}

// Historian lists archived reports.
type Historian interface {
	ListReports(ctx context.Context, limit int, cursorCreatedAt, cursorID string) ([]repo.ReportRow, error)
}

// Config for the HTTP API handler. Runner, Store, and Progress are
// required; the rest degrade gracefully when absent.
type Config struct {
	Runner    *pipeline.Runner
	Store     *store.Store
	Progress  *progress.Tracker
	Summaries Summarizer
	Boards    capture.URLBuilder
	Capture   Capturer
	History   Historian
	BasePath  string
	Auth      AuthConfig
	Log       *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"analysis not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the analysis API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope format.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Replaylens API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAnalyze(group, cfg)
	registerProgress(group, cfg)
	registerGame(group, cfg)
	registerEval(group, cfg)
	registerStats(group, cfg)
	registerAnalysis(group, cfg)
	registerCapture(group, cfg)
	registerStatus(group, cfg)
	if cfg.History != nil {
		registerHistory(group, cfg)
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", "analysis not found", nil)
	case errors.Is(err, store.ErrNotReady):
		return newAPIError(http.StatusTooEarly, "not_ready", "analysis still in progress", nil)
	case errors.Is(err, lichess.ErrBadGameID):
		return newAPIError(http.StatusBadRequest, "bad_request", "invalid game url or id", nil)
	case errors.Is(err, summary.ErrNotConfigured):
		return newAPIError(http.StatusServiceUnavailable, "not_configured", "summary generation not configured", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooEarly:
		return "not_ready"
	case http.StatusServiceUnavailable:
		return "not_configured"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type analyzeRequest struct {
	GameURL string `json:"gameUrl" example:"https://lichess.org/abcd1234"`
}

type analyzeResponse struct {
	GameID string               `json:"gameId"`
	Status domain.AnalysisState `json:"status" enum:"pending,loading,analyzing,completed,error"`
}

func registerAnalyze(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "analyze-game",
		Method:        http.MethodPost,
		Path:          "/analyze",
		Summary:       "Submit a game for analysis",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body analyzeRequest `json:"body"`
	}) (*struct {
		Body analyzeResponse `json:"body"`
	}, error) {
		gameID, err := lichess.ExtractGameID(input.Body.GameURL)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.Runner.Submit(ctx, gameID)
		state, _ := cfg.Store.State(gameID)
		return &struct {
			Body analyzeResponse `json:"body"`
		}{Body: analyzeResponse{GameID: gameID, Status: state}}, nil
	})
}

func registerProgress(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/progress/{game_id}",
		Summary:     "Analysis progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body domain.Progress `json:"body"`
	}, error) {
		p, ok := cfg.Progress.Get(input.GameID)
		if !ok {
			return nil, handleError(store.ErrNotFound)
		}
		return &struct {
			Body domain.Progress `json:"body"`
		}{Body: p}, nil
	})
}

// report returns the finished report or the mapped envelope error.
func report(cfg Config, gameID string) (*domain.Report, huma.StatusError) {
	rep, err := cfg.Store.Report(gameID)
	if err != nil {
		return nil, handleError(err)
	}
	return rep, nil
}

func registerGame(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-game",
		Method:      http.MethodGet,
		Path:        "/game/{game_id}",
		Summary:     "Analyzed game record",
		Errors:      []int{http.StatusNotFound, http.StatusTooEarly},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body domain.GameRecord `json:"body"`
	}, error) {
		rep, herr := report(cfg, input.GameID)
		if herr != nil {
			return nil, herr
		}
		return &struct {
			Body domain.GameRecord `json:"body"`
		}{Body: rep.Game}, nil
	})
}

func registerEval(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-eval",
		Method:      http.MethodGet,
		Path:        "/eval/{game_id}/{ply}",
		Summary:     "Evaluation of one ply",
		Errors:      []int{http.StatusNotFound, http.StatusTooEarly},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
		Ply    int    `path:"ply" minimum:"1"`
	}) (*struct {
		Body domain.MoveEvaluation `json:"body"`
	}, error) {
		rep, herr := report(cfg, input.GameID)
		if herr != nil {
			return nil, herr
		}
		ev, ok := rep.EvaluationFor(input.Ply)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "ply not in game", map[string]any{"ply": input.Ply})
		}
		return &struct {
			Body domain.MoveEvaluation `json:"body"`
		}{Body: ev}, nil
	})
}

func registerStats(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/stats/{game_id}",
		Summary:     "Per-player statistics",
		Errors:      []int{http.StatusNotFound, http.StatusTooEarly},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body domain.GameStats `json:"body"`
	}, error) {
		rep, herr := report(cfg, input.GameID)
		if herr != nil {
			return nil, herr
		}
		return &struct {
			Body domain.GameStats `json:"body"`
		}{Body: rep.Stats}, nil
	})
}

type analysisResponse struct {
	GameID  string `json:"game_id"`
	Summary string `json:"summary"`
}

func registerAnalysis(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-analysis",
		Method:      http.MethodGet,
		Path:        "/analysis/{game_id}",
		Summary:     "Narrative game review",
		Errors:      []int{http.StatusNotFound, http.StatusTooEarly, http.StatusInternalServerError, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body analysisResponse `json:"body"`
	}, error) {
		rep, herr := report(cfg, input.GameID)
		if herr != nil {
			return nil, herr
		}
		if rep.Summary != "" {
			return &struct {
				Body analysisResponse `json:"body"`
			}{Body: analysisResponse{GameID: input.GameID, Summary: rep.Summary}}, nil
		}
		if cfg.Summaries == nil {
			return nil, handleError(summary.ErrNotConfigured)
		}
		text, err := cfg.Summaries.Generate(ctx, rep)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.Store.SetSummary(input.GameID, text)
		return &struct {
			Body analysisResponse `json:"body"`
		}{Body: analysisResponse{GameID: input.GameID, Summary: text}}, nil
	})
}

type captureResponse struct {
	GameID string `json:"game_id"`
	Ply    int    `json:"ply"`
	FEN    string `json:"fen"`
	URL    string `json:"url"`
	Source string `json:"source" enum:"capture,board"`
}

func registerCapture(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "capture-position",
		Method:      http.MethodGet,
		Path:        "/capture/{game_id}/{ply}",
		Summary:     "Board image for a position",
		Errors:      []int{http.StatusNotFound, http.StatusTooEarly},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
		Ply    int    `path:"ply" minimum:"1"`
	}) (*struct {
		Body captureResponse `json:"body"`
	}, error) {
		rep, herr := report(cfg, input.GameID)
		if herr != nil {
			return nil, herr
		}
		var mv *domain.Move
		for i := range rep.Game.Moves {
			if rep.Game.Moves[i].Ply == input.Ply {
				mv = &rep.Game.Moves[i]
				break
			}
		}
		if mv == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "ply not in game", map[string]any{"ply": input.Ply})
		}
		resp := captureResponse{GameID: input.GameID, Ply: input.Ply, FEN: mv.FENAfter}
		if cfg.Capture != nil {
			url, err := cfg.Capture.Capture(ctx, mv.FENAfter, input.Ply)
			if err == nil {
				resp.URL = url
				resp.Source = "capture"
				return &struct {
					Body captureResponse `json:"body"`
				}{Body: resp}, nil
			}
			if cfg.Log != nil {
				cfg.Log.Warn("capture service failed, using board url", "game", input.GameID, "ply", input.Ply, "err", err)
			}
		}
		resp.URL = cfg.Boards.BoardURL(mv.FENAfter, mv.Side)
		resp.Source = "board"
		return &struct {
			Body captureResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type statusResponse struct {
	GameID     string               `json:"game_id"`
	State      domain.AnalysisState `json:"state" enum:"pending,loading,analyzing,completed,error"`
	Progress   domain.Progress      `json:"progress"`
	HasSummary bool                 `json:"has_summary"`
	Error      string               `json:"error,omitempty"`
}

func registerStatus(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status/{game_id}",
		Summary:     "Combined analysis status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		GameID string `path:"game_id"`
	}) (*struct {
		Body statusResponse `json:"body"`
	}, error) {
		state, ok := cfg.Store.State(input.GameID)
		if !ok {
			return nil, handleError(store.ErrNotFound)
		}
		p, _ := cfg.Progress.Get(input.GameID)
		resp := statusResponse{
			GameID:   input.GameID,
			State:    state,
			Progress: p,
			Error:    cfg.Store.FailureReason(input.GameID),
		}
		if sum, err := cfg.Store.Summary(input.GameID); err == nil && sum != "" {
			resp.HasSummary = true
		}
		return &struct {
			Body statusResponse `json:"body"`
		}{Body: resp}, nil
	})
}

type historyPage struct {
	Items      []repo.ReportRow `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func registerHistory(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "list-history",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "Archived analyses",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body historyPage `json:"body"`
	}, error) {
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		rows, err := cfg.History.ListReports(ctx, input.Limit+1, cursorCreated, cursorID)
		if err != nil {
			return nil, handleError(err)
		}
		page := historyPage{Items: []repo.ReportRow{}}
		if len(rows) > input.Limit {
			page.NextCursor = composeCursor(rows[input.Limit].CreatedAt, rows[input.Limit].GameID)
			rows = rows[:input.Limit]
		}
		page.Items = rows
		return &struct {
			Body historyPage `json:"body"`
		}{Body: page}, nil
	})
}

func composeCursor(createdAt, id string) string {
	return createdAt + "|" + id
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid cursor")
	}
	return parts[0], parts[1], nil
}
