package infra

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationDirs lists where schema files live, resolved relative to this
// source file: the module's migrations first, then harness-local overlays.
// A missing directory is skipped.
func migrationDirs() []string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return nil
	}
	base := filepath.Dir(file)
	return []string{
		filepath.Join(base, "..", "..", "migrations"),
		filepath.Join(base, "..", "migrations"),
	}
}

// ApplyMigrations connects to dsn, applies the schema, and returns the pool
// plus a teardown func. With isolate set, everything lands in a fresh
// per-run schema so concurrent runs against a shared database cannot see
// each other; teardown drops that schema.
func ApplyMigrations(ctx context.Context, dsn string, isolate bool) (*pgxpool.Pool, func(context.Context) error, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("infra: parse pool config: %w", err)
	}

	teardown := func(context.Context) error { return nil }
	if isolate {
		teardown, err = isolateSchema(ctx, dsn, cfg)
		if err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("infra: connect pool: %w", err)
	}

	for _, dir := range migrationDirs() {
		if err := applySQLDir(ctx, pool, dir); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	return pool, teardown, nil
}

// isolateSchema creates a run-scoped schema, points every new connection at
// it through search_path, and returns the func that drops it again.
func isolateSchema(ctx context.Context, dsn string, cfg *pgxpool.Config) (func(context.Context) error, error) {
	schema := fmt.Sprintf("escrow_run_%d", time.Now().UnixNano())
	ident := pgx.Identifier{schema}.Sanitize()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("infra: connect for schema: %w", err)
	}
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+ident)
	conn.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("infra: create schema %s: %w", schema, err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO "+ident)
		return err
	}

	return func(ctx context.Context) error {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		return err
	}, nil
}

// applySQLDir runs every .sql file in dir in lexical order, so numbered
// migration files apply oldest first.
func applySQLDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("infra: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("infra: read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("infra: apply %s: %w", name, err)
		}
	}
	return nil
}
