package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func writeMigrations(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("-- "+n), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestCollectUpFiles_SortedAndFiltered(t *testing.T) {
	dir := writeMigrations(t, "002_page_views.up.sql", "000_drop_all.sql", "001_contact_messages.up.sql", "README.md")

	files, err := collectUpFiles(dir)
	if err != nil {
		t.Fatalf("collectUpFiles: %v", err)
	}
	want := []string{"001_contact_messages.up.sql", "002_page_views.up.sql"}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("got %v, want %v", files, want)
	}
}

func TestCollectUpFiles_MissingDir(t *testing.T) {
	if _, err := collectUpFiles(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestPending(t *testing.T) {
	files := []string{"001_contact_messages.up.sql", "002_page_views.up.sql"}
	got := pending(files, map[string]bool{"001_contact_messages": true})
	if !reflect.DeepEqual(got, []string{"002_page_views.up.sql"}) {
		t.Errorf("unexpected pending list %v", got)
	}
	if len(pending(files, map[string]bool{"001_contact_messages": true, "002_page_views": true})) != 0 {
		t.Error("expected nothing pending")
	}
}

// fakeExec records statements; Query is never reached in these tests.
type fakeExec struct {
	statements []string
	failOn     string
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	stmt := sql
	if len(args) > 0 {
		stmt += " " + args[0].(string)
	}
	f.statements = append(f.statements, stmt)
	return pgconn.CommandTag{}, nil
}

func (f *fakeExec) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestRunFile(t *testing.T) {
	dir := writeMigrations(t, "000_drop_all.sql")
	ex := &fakeExec{}
	m := &migrator{exec: ex, dir: dir}

	if err := m.runFile(context.Background(), "000_drop_all.sql"); err != nil {
		t.Fatalf("runFile: %v", err)
	}
	if len(ex.statements) != 1 || ex.statements[0] != "-- 000_drop_all.sql" {
		t.Errorf("unexpected statements %v", ex.statements)
	}

	if err := m.runFile(context.Background(), "missing.sql"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunConsolidated_MarksAllMigrations(t *testing.T) {
	dir := writeMigrations(t, "000_consolidated.sql", "001_contact_messages.up.sql", "002_page_views.up.sql")
	ex := &fakeExec{}
	m := &migrator{exec: ex, dir: dir}

	if err := m.runConsolidated(context.Background()); err != nil {
		t.Fatalf("runConsolidated: %v", err)
	}
	joined := strings.Join(ex.statements, "\n")
	for _, want := range []string{"-- 000_consolidated.sql", "schema_migrations", "001_contact_messages", "002_page_views"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q among statements:\n%s", want, joined)
		}
	}
}

func TestRunConsolidated_StopsOnError(t *testing.T) {
	dir := writeMigrations(t, "000_consolidated.sql")
	m := &migrator{exec: &fakeExec{failOn: "000_consolidated"}, dir: dir}

	if err := m.runConsolidated(context.Background()); err == nil {
		t.Error("expected error")
	}
}
