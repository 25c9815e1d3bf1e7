package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/portfolio/backend/internal/config"
	"github.com/portfolio/backend/internal/db"
	"github.com/portfolio/backend/internal/logging"
)

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: migrate [command]

Commands:
  (default)   apply pending migrations
  reset       drop all tables and recreate them from the consolidated schema
  fresh       drop all tables and apply every migration in order

With DATABASE_DRIVER=sqlite the embedded schema is applied and commands are ignored.`)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("INFO")
		logging.Fatal("failed to load configuration", "error", err)
	}
	logging.Setup(cfg.Logging.Level)

	if cfg.Database.Driver == config.DriverSQLite {
		database, err := db.Open(cfg.Database.SQLitePath)
		if err != nil {
			logging.Fatal("sqlite migrate failed", "path", cfg.Database.SQLitePath, "error", err)
		}
		_ = database.Close()
		slog.Info("sqlite schema applied", "path", cfg.Database.SQLitePath)
		return
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logging.Fatal("connect failed", "error", err)
	}
	defer pool.Close()

	m := &migrator{exec: pool, dir: findMigrationDir()}

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "":
		err = m.runIncremental(ctx)
	case "reset":
		if err = m.runFile(ctx, "000_drop_all.sql"); err == nil {
			err = m.runConsolidated(ctx)
		}
	case "fresh":
		if err = m.runFile(ctx, "000_drop_all.sql"); err == nil {
			err = m.runIncremental(ctx)
		}
	default:
		usage()
	}
	if err != nil {
		logging.Fatal("migrate failed", "command", cmd, "error", err)
	}
}

func findMigrationDir() string {
	dir := "migrations"
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = "../migrations"
	}
	return dir
}

// collectUpFiles returns the .up.sql file names in dir, sorted.
func collectUpFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func migrationName(filename string) string {
	return strings.TrimSuffix(filename, ".up.sql")
}

// pending filters files down to those whose migration is not in applied.
func pending(files []string, applied map[string]bool) []string {
	var out []string
	for _, f := range files {
		if !applied[migrationName(f)] {
			out = append(out, f)
		}
	}
	return out
}
