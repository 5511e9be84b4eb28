// Package lichess talks to the lichess.org export and cloud-eval APIs
// and turns PGN exports into replayable game records.
package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"replaylens/internal/config"
	"replaylens/internal/domain"
)

var (
	// ErrNotFound means the upstream does not know the game id.
	ErrNotFound = errors.New("game not found")
	// ErrUnavailable covers transport failures and 5xx answers.
	ErrUnavailable = errors.New("upstream unavailable")
	// ErrMalformed means the export could not be replayed.
	ErrMalformed = errors.New("malformed game data")
	// ErrBadGameID means the submitted URL or id failed validation.
	ErrBadGameID = errors.New("invalid game id")
)

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,20}$`)

// ExtractGameID pulls the game id out of a lichess game URL. Bare ids
// are accepted as-is. The id is the trailing path segment, so both
// https://lichess.org/abcd1234 and .../abcd1234/white resolve the same
// way after the color suffix is dropped.
func ExtractGameID(gameURL string) (string, error) {
	s := strings.TrimSpace(gameURL)
	if s == "" {
		return "", ErrBadGameID
	}
	if gameIDPattern.MatchString(s) && !strings.Contains(s, "/") {
		return s, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", ErrBadGameID
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		if seg == "" || seg == "white" || seg == "black" {
			continue
		}
		if !gameIDPattern.MatchString(seg) {
			return "", ErrBadGameID
		}
		return seg, nil
	}
	return "", ErrBadGameID
}

// Client fetches games and evaluations from lichess. All requests go
// through one rate limiter so bursts of ply evaluations stay polite.
type Client struct {
	BaseURL    string
	Token      string
	HTTP       *http.Client
	Limiter    *rate.Limiter
	MaxRetries int
	Log        *slog.Logger
}

// NewClient builds a Client from configuration.
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(cfg.Lichess.BaseURL, "/"),
		Token:      cfg.Lichess.Token,
		HTTP:       &http.Client{Timeout: cfg.LichessTimeout()},
		Limiter:    rate.NewLimiter(rate.Limit(cfg.Lichess.RequestsPerSec), cfg.Lichess.Burst),
		MaxRetries: cfg.Lichess.MaxRetries,
		Log:        log,
	}
}

// FetchGame downloads the PGN export of a game and replays it into a
// GameRecord. Evals embedded in the PGN are returned alongside, keyed
// by ply.
func (c *Client) FetchGame(ctx context.Context, gameID string) (*domain.GameRecord, map[int]domain.EvaluationSample, error) {
	if !gameIDPattern.MatchString(gameID) {
		return nil, nil, ErrBadGameID
	}
	endpoint := fmt.Sprintf("%s/game/export/%s?evals=true&opening=true", c.BaseURL, url.PathEscape(gameID))
	body, err := c.get(ctx, endpoint, "application/x-chess-pgn")
	if err != nil {
		return nil, nil, err
	}
	rec, evals, err := ParsePGN(string(body))
	if err != nil {
		return nil, nil, err
	}
	rec.ID = gameID
	if rec.Site == "" {
		rec.Site = "https://lichess.org/" + gameID
	}
	return rec, evals, nil
}

type cloudEvalResponse struct {
	KNodes int `json:"knodes"`
	Depth  int `json:"depth"`
	PVs    []struct {
		Moves string `json:"moves"`
		CP    *int   `json:"cp"`
		Mate  *int   `json:"mate"`
	} `json:"pvs"`
}

// FetchCloudEval asks the cloud evaluation of a position. A position
// the cloud has never seen yields an Absent sample, not an error.
func (c *Client) FetchCloudEval(ctx context.Context, fen string) (domain.EvaluationSample, error) {
	endpoint := fmt.Sprintf("%s/api/cloud-eval?fen=%s&multiPv=1", c.BaseURL, url.QueryEscape(fen))
	body, err := c.get(ctx, endpoint, "application/json")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.EvaluationSample{Absent: true}, nil
		}
		return domain.EvaluationSample{}, err
	}
	var resp cloudEvalResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.EvaluationSample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(resp.PVs) == 0 {
		return domain.EvaluationSample{Absent: true}, nil
	}
	pv := resp.PVs[0]
	sample := domain.EvaluationSample{
		CP:    pv.CP,
		Mate:  pv.Mate,
		Depth: resp.Depth,
		Nodes: resp.KNodes * 1000,
	}
	if fields := strings.Fields(pv.Moves); len(fields) > 0 {
		sample.Best = fields[0]
	}
	if sample.CP == nil && sample.Mate == nil {
		sample.Absent = true
	}
	return sample, nil
}

// get runs one rate-limited GET with retry on 429 and transient 5xx.
func (c *Client) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, retry, err := c.once(ctx, endpoint, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry {
			return nil, err
		}
		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		if c.Log != nil {
			c.Log.Warn("retrying upstream request", "endpoint", endpoint, "attempt", attempt+1, "backoff", backoff)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, endpoint, accept string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", accept)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return b, false, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: rate limited", ErrUnavailable)
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
}
