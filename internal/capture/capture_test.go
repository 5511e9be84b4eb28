package capture_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"replaylens/internal/capture"
	"replaylens/internal/domain"
)

func TestBoardURL(t *testing.T) {
	b := capture.URLBuilder{Template: "https://example.com/dynboard?fen=%s&size=3"}
	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	got := b.BoardURL(fen, domain.White)
	if !strings.HasPrefix(got, "https://example.com/dynboard?fen=rnbqkbnr") {
		t.Fatalf("url: %s", got)
	}
	if strings.Contains(got, " ") || strings.Contains(got, "KQkq") {
		t.Fatalf("placement not isolated: %s", got)
	}
	if strings.Contains(got, "flip") {
		t.Fatalf("white view should not flip: %s", got)
	}
	if got := b.BoardURL(fen, domain.Black); !strings.HasSuffix(got, "&flip=true") {
		t.Fatalf("black view should flip: %s", got)
	}
}

func newCaptureServer(t *testing.T) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				Type    string `json:"type"`
				Session string `json:"session"`
				FEN     string `json:"fen"`
				Ply     int    `json:"ply"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.FEN == "bad" {
				conn.WriteJSON(map[string]string{"error": "unreadable position"})
				continue
			}
			conn.WriteJSON(map[string]string{"url": "https://img.example/" + req.Session + "/" + req.FEN})
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSessionCapture(t *testing.T) {
	srv := newCaptureServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := capture.Dial(ctx, wsURL(srv), "replaylens", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()

	url, err := sess.Capture(ctx, "fen1", 1)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if url != "https://img.example/replaylens/fen1" {
		t.Fatalf("url: %s", url)
	}
	if _, err := sess.Capture(ctx, "bad", 2); err == nil {
		t.Fatalf("expected service error")
	}
}

func TestSessionSerializesCallers(t *testing.T) {
	srv := newCaptureServer(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, err := capture.Dial(ctx, wsURL(srv), "s", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sess.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := sess.Capture(ctx, "fen", 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent capture: %v", err)
	}
}

func TestSessionClosed(t *testing.T) {
	srv := newCaptureServer(t)
	defer srv.Close()
	sess, err := capture.Dial(context.Background(), wsURL(srv), "s", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := sess.Capture(context.Background(), "fen", 1); err != capture.ErrSessionClosed {
		t.Fatalf("got %v", err)
	}
}
