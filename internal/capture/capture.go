// Package capture produces board images for analyzed positions. When a
// capture service is configured it drives one over a websocket; without
// one it falls back to a static diagram URL.
package capture

import (
	"fmt"
	"net/url"
	"strings"

	"replaylens/internal/domain"
)

// URLBuilder renders a diagram URL for a position from a template with
// a single %s placeholder for the FEN.
type URLBuilder struct {
	Template string
}

// BoardURL returns the diagram URL for a FEN. Only the piece placement
// field is sent; diagram services ignore the rest.
func (b URLBuilder) BoardURL(fen string, side domain.Side) string {
	placement := fen
	if i := strings.IndexByte(fen, ' '); i > 0 {
		placement = fen[:i]
	}
	u := fmt.Sprintf(b.Template, url.QueryEscape(placement))
	if side == domain.Black {
		u += "&flip=true"
	}
	return u
}
