package lichess

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"replaylens/internal/domain"
)

var (
	headerPattern      = regexp.MustCompile(`^\[(\w+)\s+"(.*)"\]\s*$`)
	evalCommentPattern = regexp.MustCompile(`\[%eval\s+([#0-9.+-]+)`)
	moveNumberPattern  = regexp.MustCompile(`^\d+\.*$`)
	nagPattern         = regexp.MustCompile(`^\$\d+$`)
)

// ParsePGN replays a PGN export into a GameRecord. Embedded
// [%eval ...] comments are returned keyed by the ply they follow.
func ParsePGN(pgn string) (*domain.GameRecord, map[int]domain.EvaluationSample, error) {
	headers, movetext := splitPGN(pgn)

	rec := &domain.GameRecord{
		Site:    headers["Site"],
		Result:  headers["Result"],
		Opening: headers["Opening"],
		Speed:   headers["Speed"],
		White:   domain.PlayerInfo{Name: headers["White"], Rating: atoi(headers["WhiteElo"])},
		Black:   domain.PlayerInfo{Name: headers["Black"], Rating: atoi(headers["BlackElo"])},
		PGN:     pgn,
	}
	if d := headers["UTCDate"]; d != "" {
		rec.PlayedAt = d
		if tm := headers["UTCTime"]; tm != "" {
			rec.PlayedAt = d + " " + tm
		}
	}

	game := nchess.NewGame()
	evals := make(map[int]domain.EvaluationSample)
	ply := 0

	push := func(san string) error {
		san = strings.TrimRight(san, "!?")
		if san == "" {
			return nil
		}
		pos := game.Position()
		fenBefore := game.FEN()
		side := domain.White
		if pos.Turn() == nchess.Black {
			side = domain.Black
		}
		mv, err := nchess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			return fmt.Errorf("%w: ply %d %q: %v", ErrMalformed, ply+1, san, err)
		}
		uci := nchess.UCINotation{}.Encode(pos, mv)
		if err := game.PushNotationMove(san, nchess.AlgebraicNotation{}, nil); err != nil {
			return fmt.Errorf("%w: ply %d %q: %v", ErrMalformed, ply+1, san, err)
		}
		ply++
		rec.Moves = append(rec.Moves, domain.Move{
			Ply:       ply,
			Number:    (ply + 1) / 2,
			Side:      side,
			SAN:       san,
			UCI:       uci,
			FENBefore: fenBefore,
			FENAfter:  game.FEN(),
		})
		return nil
	}

	i := 0
	for i < len(movetext) {
		switch movetext[i] {
		case '{':
			end := strings.IndexByte(movetext[i:], '}')
			if end < 0 {
				return nil, nil, fmt.Errorf("%w: unterminated comment", ErrMalformed)
			}
			comment := movetext[i+1 : i+end]
			if m := evalCommentPattern.FindStringSubmatch(comment); m != nil && ply > 0 {
				if sample, ok := parseEvalToken(m[1]); ok {
					evals[ply] = sample
				}
			}
			i += end + 1
		case '(':
			i += skipVariation(movetext[i:])
		case ';':
			if nl := strings.IndexByte(movetext[i:], '\n'); nl >= 0 {
				i += nl + 1
			} else {
				i = len(movetext)
			}
		case ' ', '\t', '\n', '\r':
			i++
		default:
			j := i
			for j < len(movetext) && !strings.ContainsRune(" \t\n\r{};()", rune(movetext[j])) {
				j++
			}
			tok := movetext[i:j]
			i = j
			if moveNumberPattern.MatchString(tok) || nagPattern.MatchString(tok) || isResult(tok) {
				continue
			}
			if err := push(tok); err != nil {
				return nil, nil, err
			}
		}
	}
	return rec, evals, nil
}

func splitPGN(pgn string) (map[string]string, string) {
	headers := make(map[string]string)
	var body strings.Builder
	for _, line := range strings.Split(pgn, "\n") {
		if m := headerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			headers[m[1]] = m[2]
			continue
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	return headers, body.String()
}

// skipVariation returns the length of a balanced parenthesized span.
func skipVariation(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(s)
}

func isResult(tok string) bool {
	switch tok {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}

// parseEvalToken converts an annotation value to a sample. "#3" is mate
// in three, "0.25" is 25 centipawns.
func parseEvalToken(s string) (domain.EvaluationSample, bool) {
	if strings.HasPrefix(s, "#") {
		n, err := strconv.Atoi(strings.TrimPrefix(s, "#"))
		if err != nil {
			return domain.EvaluationSample{}, false
		}
		return domain.EvaluationSample{Mate: &n}, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return domain.EvaluationSample{}, false
	}
	cp := int(math.Round(f * 100))
	return domain.EvaluationSample{CP: &cp}, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// SANFromUCI renders a UCI move as SAN for the position in fen.
func SANFromUCI(fen, uci string) (string, error) {
	option, err := nchess.FEN(fen)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	pos := nchess.NewGame(option).Position()
	mv, err := nchess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
}
