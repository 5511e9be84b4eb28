package replaylenssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Replaylens HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Submission is the accepted analysis request.
type Submission struct {
	GameID string `json:"gameId"`
	Status string `json:"status"`
}

// Progress mirrors the progress endpoint payload.
type Progress struct {
	GameID  string  `json:"game_id"`
	State   string  `json:"state"`
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Player is one side of the game.
type Player struct {
	Name   string `json:"name"`
	Rating int    `json:"rating,omitempty"`
}

// Game is the fetched game record (partial).
type Game struct {
	ID      string `json:"id"`
	White   Player `json:"white"`
	Black   Player `json:"black"`
	Result  string `json:"result,omitempty"`
	Opening string `json:"opening,omitempty"`
	Moves   []struct {
		Ply  int    `json:"ply"`
		SAN  string `json:"san"`
		Side string `json:"side"`
	} `json:"moves"`
}

// Evaluation is one graded move.
type Evaluation struct {
	Ply       int    `json:"ply"`
	Side      string `json:"side"`
	SAN       string `json:"san"`
	DeltaCP   *int   `json:"delta_cp,omitempty"`
	DeltaMate *int   `json:"delta_mate,omitempty"`
	Category  string `json:"category"`
	BestMove  string `json:"best_move,omitempty"`
	Summary   string `json:"summary"`
}

// PlayerStats aggregates one player's move categories.
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

// Stats holds both players' aggregates.
type Stats struct {
	White PlayerStats `json:"white"`
	Black PlayerStats `json:"black"`
}

// Analysis is the narrative review.
type Analysis struct {
	GameID  string `json:"game_id"`
	Summary string `json:"summary"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Analyze submits a game URL or id for analysis.
func (c *Client) Analyze(ctx context.Context, gameURL string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "api/analyze", map[string]any{"gameUrl": gameURL}, &resp)
	return resp, err
}

// Progress reports how far the analysis has gotten.
func (c *Client) Progress(ctx context.Context, gameID string) (Progress, error) {
	var resp Progress
	err := c.do(ctx, http.MethodGet, "api/progress/"+url.PathEscape(gameID), nil, &resp)
	return resp, err
}

// Game fetches the analyzed game record.
func (c *Client) Game(ctx context.Context, gameID string) (Game, error) {
	var resp Game
	err := c.do(ctx, http.MethodGet, "api/game/"+url.PathEscape(gameID), nil, &resp)
	return resp, err
}

// Eval fetches the grading of one ply.
func (c *Client) Eval(ctx context.Context, gameID string, ply int) (Evaluation, error) {
	var resp Evaluation
	endpoint := fmt.Sprintf("api/eval/%s/%d", url.PathEscape(gameID), ply)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Stats fetches per-player aggregates.
func (c *Client) Stats(ctx context.Context, gameID string) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "api/stats/"+url.PathEscape(gameID), nil, &resp)
	return resp, err
}

// Analysis fetches the narrative review, generating it on first call.
func (c *Client) Analysis(ctx context.Context, gameID string) (Analysis, error) {
	var resp Analysis
	err := c.do(ctx, http.MethodGet, "api/analysis/"+url.PathEscape(gameID), nil, &resp)
	return resp, err
}

// Wait polls progress until the analysis reaches a terminal state.
func (c *Client) Wait(ctx context.Context, gameID string, interval time.Duration) (Progress, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for {
		p, err := c.Progress(ctx, gameID)
		if err != nil {
			return Progress{}, err
		}
		if p.State == "completed" || p.State == "error" {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
