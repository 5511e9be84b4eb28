package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDSNCarriesArchivePragmas(t *testing.T) {
	got := dsn("state/replaylens.db")
	for _, want := range []string{
		"file:state/replaylens.db?cache=shared",
		"_pragma=journal_mode(WAL)",
		"_pragma=busy_timeout(5000)",
		"_pragma=foreign_keys(1)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn missing %q: %s", want, got)
		}
	}
}

func TestOpenCreatesWorkspace(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := conn.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if want := filepath.Join(ws, ".replaylens", archiveName); Path(ws) != want {
		t.Fatalf("path: %s", Path(ws))
	}
}
