// Package db opens the SQLite archive that keeps finished reports and
// the pipeline event log between runs.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const archiveName = "replaylens.db"

// Config locates the workspace the archive lives under.
type Config struct {
	Workspace string
}

// The pipeline writes reports while API handlers read them, so the
// archive runs in WAL mode and waits out short write locks instead of
// surfacing SQLITE_BUSY to callers.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

func dsn(path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "file:%s?cache=shared", path)
	for _, p := range pragmas {
		fmt.Fprintf(&b, "&_pragma=%s", p)
	}
	return b.String()
}

// EnsureWorkspace creates the hidden state directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, ".replaylens")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open creates the workspace if needed and opens the archive.
func Open(cfg Config) (*sql.DB, error) {
	dir, err := EnsureWorkspace(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	conn, err := sql.Open("sqlite", dsn(filepath.Join(dir, archiveName)))
	if err != nil {
		return nil, err
	}
	// modernc.org/sqlite serializes writers per connection; a single
	// connection keeps report upserts and event appends ordered.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Path returns where the archive lives for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".replaylens", archiveName)
}
