package lichess_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"replaylens/internal/domain"
	"replaylens/internal/lichess"
)

const samplePGN = `[Event "Rated blitz game"]
[Site "https://lichess.org/abcd1234"]
[White "alice"]
[Black "bob"]
[WhiteElo "1850"]
[BlackElo "1790"]
[Result "1-0"]
[UTCDate "2024.03.01"]
[UTCTime "18.22.01"]
[Opening "Italian Game"]

1. e4 { [%eval 0.2] } 1... e5 { [%eval 0.15] } 2. Bc4 Nc6 { [%eval 0.1] }
3. Qh5 { [%eval -0.3] } 3... Nf6?? { [%eval #2] } 4. Qxf7# 1-0
`

func newClient(t *testing.T, srv *httptest.Server) *lichess.Client {
	t.Helper()
	return &lichess.Client{
		BaseURL:    srv.URL,
		HTTP:       srv.Client(),
		Limiter:    rate.NewLimiter(rate.Inf, 1),
		MaxRetries: 2,
		Log:        slog.Default(),
	}
}

func TestExtractGameID(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://lichess.org/abcd1234", "abcd1234", true},
		{"https://lichess.org/abcd1234/white", "abcd1234", true},
		{"https://lichess.org/abcd1234/black#12", "abcd1234", true},
		{"abcd1234", "abcd1234", true},
		{"https://lichess.org/", "", false},
		{"abc", "", false},
		{"has spaces", "", false},
		{"../../etc/passwd", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := lichess.ExtractGameID(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("%q: got %q err %v", tc.in, got, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%q: expected error", tc.in)
		}
	}
}

func TestFetchGameReplaysPGN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/game/export/abcd1234" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, samplePGN)
	}))
	defer srv.Close()

	rec, evals, err := newClient(t, srv).FetchGame(context.Background(), "abcd1234")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec.White.Name != "alice" || rec.White.Rating != 1850 {
		t.Fatalf("white header: %+v", rec.White)
	}
	if len(rec.Moves) != 7 {
		t.Fatalf("moves: got %d want 7", len(rec.Moves))
	}
	first := rec.Moves[0]
	if first.SAN != "e4" || first.UCI != "e2e4" || first.Side != domain.White {
		t.Fatalf("first move: %+v", first)
	}
	if first.FENBefore == first.FENAfter {
		t.Fatalf("positions did not advance")
	}
	last := rec.Moves[6]
	if last.SAN != "Qxf7#" || last.Side != domain.White || last.Number != 4 {
		t.Fatalf("last move: %+v", last)
	}
	// chained positions
	for i := 1; i < len(rec.Moves); i++ {
		if rec.Moves[i].FENBefore != rec.Moves[i-1].FENAfter {
			t.Fatalf("ply %d does not continue ply %d", i+1, i)
		}
	}
	if ev, ok := evals[1]; !ok || ev.CP == nil || *ev.CP != 20 {
		t.Fatalf("ply 1 eval: %+v", ev)
	}
	if ev, ok := evals[6]; !ok || ev.Mate == nil || *ev.Mate != 2 {
		t.Fatalf("ply 6 eval: %+v", ev)
	}
}

func TestFetchGameNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, _, err := newClient(t, srv).FetchGame(context.Background(), "zzzz9999")
	if !errors.Is(err, lichess.ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestFetchGameMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "[White \"x\"]\n\n1. e9 1-0\n")
	}))
	defer srv.Close()
	_, _, err := newClient(t, srv).FetchGame(context.Background(), "abcd1234")
	if !errors.Is(err, lichess.ErrMalformed) {
		t.Fatalf("got %v", err)
	}
}

func TestFetchCloudEval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fen") == "" {
			http.Error(w, "missing fen", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"knodes":13683,"depth":22,"pvs":[{"moves":"e2e4 e7e5","cp":15}]}`)
	}))
	defer srv.Close()

	sample, err := newClient(t, srv).FetchCloudEval(context.Background(), "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1")
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if sample.CP == nil || *sample.CP != 15 || sample.Depth != 22 || sample.Nodes != 13683000 {
		t.Fatalf("sample: %+v", sample)
	}
}

func TestFetchCloudEvalMissingPosition(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	sample, err := newClient(t, srv).FetchCloudEval(context.Background(), "8/8/8/8/8/8/8/K6k w - - 0 1")
	if err != nil {
		t.Fatalf("expected absent sample, got error %v", err)
	}
	if !sample.Absent {
		t.Fatalf("sample: %+v", sample)
	}
}

func TestRetryAfterRateLimit(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"depth":10,"pvs":[{"moves":"e2e4","mate":3}]}`)
	}))
	defer srv.Close()

	sample, err := newClient(t, srv).FetchCloudEval(context.Background(), "fen")
	if err != nil {
		t.Fatalf("eval after retry: %v", err)
	}
	if hits != 2 {
		t.Fatalf("hits: %d", hits)
	}
	if sample.Mate == nil || *sample.Mate != 3 {
		t.Fatalf("sample: %+v", sample)
	}
}

func TestBearerTokenSent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"pvs":[{"moves":"e2e4","cp":1}]}`)
	}))
	defer srv.Close()
	c := newClient(t, srv)
	c.Token = "lip_secret"
	if _, err := c.FetchCloudEval(context.Background(), "fen"); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer lip_secret" {
		t.Fatalf("auth header: %q", got)
	}
}
