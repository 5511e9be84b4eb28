package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrSessionClosed means Capture was called after Close.
var ErrSessionClosed = errors.New("capture session closed")

type captureRequest struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	FEN     string `json:"fen"`
	Ply     int    `json:"ply"`
}

type captureResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Session is a live websocket connection to the capture service. One
// request is in flight at a time; callers are serialized on a mutex
// because the service renders a single shared browser page.
type Session struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	name   string
	log    *slog.Logger
	closed bool
}

// Dial opens a session against the capture service endpoint. An empty
// name gets a generated session id so concurrent services stay apart.
func Dial(ctx context.Context, serviceURL, name string, log *slog.Logger) (*Session, error) {
	if name == "" {
		name = "replaylens-" + uuid.NewString()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, serviceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial capture service: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &Session{conn: conn, name: name, log: log}, nil
}

// Capture asks the service to render a position and returns the image
// URL it produced.
func (s *Session) Capture(ctx context.Context, fen string, ply int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
		_ = s.conn.SetWriteDeadline(deadline)
	}
	req := captureRequest{Type: "capture", Session: s.name, FEN: fen, Ply: ply}
	if err := s.conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("send capture request: %w", err)
	}
	var resp captureResponse
	if err := s.conn.ReadJSON(&resp); err != nil {
		return "", fmt.Errorf("read capture response: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("capture service: %s", resp.Error)
	}
	return resp.URL, nil
}

// Close shuts the connection down. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	err := s.conn.Close()
	if s.log != nil {
		s.log.Debug("capture session closed", "session", s.name)
	}
	return err
}
