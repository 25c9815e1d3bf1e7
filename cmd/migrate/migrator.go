package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of pgxpool.Pool the migrator uses.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type migrator struct {
	exec execer
	dir  string
}

func (m *migrator) ensureSchemaMigrations(ctx context.Context) error {
	_, err := m.exec.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.exec.Query(ctx, "SELECT name FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// runIncremental applies every migration not yet recorded in schema_migrations.
func (m *migrator) runIncremental(ctx context.Context) error {
	if err := m.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	files, err := collectUpFiles(m.dir)
	if err != nil {
		return err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	todo := pending(files, done)
	for _, filename := range todo {
		name := migrationName(filename)
		if err := m.runFile(ctx, filename); err != nil {
			return err
		}
		if _, err := m.exec.Exec(ctx, "INSERT INTO schema_migrations (name) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		slog.Info("migration completed", "migration", name)
	}

	if len(todo) == 0 {
		slog.Info("all migrations already applied")
	} else {
		slog.Info("migrations completed", "count", len(todo))
	}
	return nil
}

// runConsolidated applies 000_consolidated.sql and marks every migration applied.
func (m *migrator) runConsolidated(ctx context.Context) error {
	if err := m.runFile(ctx, "000_consolidated.sql"); err != nil {
		return err
	}
	if err := m.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	files, err := collectUpFiles(m.dir)
	if err != nil {
		return err
	}
	for _, filename := range files {
		if _, err := m.exec.Exec(ctx, "INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING", migrationName(filename)); err != nil {
			return fmt.Errorf("mark migration %s: %w", filename, err)
		}
	}
	slog.Info("consolidated schema applied", "migrations_marked", len(files))
	return nil
}

func (m *migrator) runFile(ctx context.Context, filename string) error {
	sql, err := os.ReadFile(filepath.Join(m.dir, filename))
	if err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if _, err := m.exec.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s: %w", filename, err)
	}
	return nil
}
