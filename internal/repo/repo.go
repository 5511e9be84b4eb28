// Package repo persists finished analysis reports in the archive.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"replaylens/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ReportRow is the summary view shown by the history listing.
type ReportRow struct {
	GameID        string  `json:"game_id"`
	Site          string  `json:"site,omitempty"`
	White         string  `json:"white"`
	Black         string  `json:"black"`
	Result        string  `json:"result,omitempty"`
	WhiteAccuracy float64 `json:"white_accuracy"`
	BlackAccuracy float64 `json:"black_accuracy"`
	CreatedAt     string  `json:"created_at"`
}

// UpsertReport stores a finished report, replacing any earlier run of
// the same game.
func (r Repo) UpsertReport(ctx context.Context, rep *domain.Report) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	createdAt := rep.CreatedAt
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO reports(game_id,site,white,black,result,white_accuracy,black_accuracy,report_json,created_at)
VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(game_id) DO UPDATE SET site=excluded.site, white=excluded.white, black=excluded.black,
result=excluded.result, white_accuracy=excluded.white_accuracy, black_accuracy=excluded.black_accuracy,
report_json=excluded.report_json, created_at=excluded.created_at`,
		rep.Game.ID, nullable(rep.Game.Site), rep.Game.White.Name, rep.Game.Black.Name, nullable(rep.Game.Result),
		rep.Stats.White.Accuracy, rep.Stats.Black.Accuracy, string(payload), createdAt)
	return err
}

// GetReport loads the full report of a game.
func (r Repo) GetReport(ctx context.Context, gameID string) (*domain.Report, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE game_id=?`, gameID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rep domain.Report
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListReports pages through archived reports, newest first.
func (r Repo) ListReports(ctx context.Context, limit int, cursorCreatedAt, cursorID string) ([]ReportRow, error) {
	clauses := []string{"1=1"}
	var args []any
	if cursorCreatedAt != "" && cursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND game_id < ?))")
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorID)
	}
	query := `SELECT game_id,COALESCE(site,''),white,black,COALESCE(result,''),white_accuracy,black_accuracy,created_at FROM reports WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, game_id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ReportRow
	for rows.Next() {
		var row ReportRow
		if err := rows.Scan(&row.GameID, &row.Site, &row.White, &row.Black, &row.Result, &row.WhiteAccuracy, &row.BlackAccuracy, &row.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest event rows, optionally scoped to a
// game.
func (r Repo) LatestEvents(ctx context.Context, limit int, gameID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if gameID != "" {
		clauses = append(clauses, "game_id=?")
		args = append(args, gameID)
	}
	query := `SELECT id,ts,type,COALESCE(game_id,''),payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.GameID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
