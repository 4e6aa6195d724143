package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Migration is one versioned schema change, loaded from a pair of files
// named {version}_{name}.up.sql and {version}_{name}.down.sql.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// LoadMigrations reads every migration in fsys, ordered by version. An up
// file without its down file, or two files sharing a version, is an error.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var stem string
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			stem, up = strings.TrimSuffix(name, ".up.sql"), true
		case strings.HasSuffix(name, ".down.sql"):
			stem = strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}

		version, label, ok := strings.Cut(stem, "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migration %s: want {version}_{name}", name)
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: label}
			byVersion[version] = m
		} else if m.Name != label {
			return nil, fmt.Errorf("migration version %s used by %q and %q", version, m.Name, label)
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s_%s: needs both up and down files", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Filename is the up file the migration was loaded from.
func (m Migration) Filename() string {
	return m.Version + "_" + m.Name + ".up.sql"
}

// Migrator applies migrations and records them in public.schema_migrations.
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	logger zerolog.Logger
}

// NewMigrator reads migrations from a directory on disk.
func NewMigrator(db *sql.DB, migrationsDir string, logger zerolog.Logger) *Migrator {
	return NewMigratorFS(db, os.DirFS(migrationsDir), logger)
}

func NewMigratorFS(db *sql.DB, fsys fs.FS, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, fsys: fsys, logger: logger}
}

// Up applies all pending migrations in version order, each in its own
// transaction.
func (m *Migrator) Up(ctx context.Context) error {
	pending, err := m.pending(ctx)
	if err != nil {
		return err
	}

	for _, mig := range pending {
		m.logger.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("applying migration")
		err := m.inTx(ctx, mig.Up,
			`INSERT INTO public.schema_migrations (version, filename) VALUES ($1, $2)`,
			mig.Version, mig.Filename())
		if err != nil {
			return fmt.Errorf("migration %s: %w", mig.Filename(), err)
		}
	}
	if len(pending) > 0 {
		m.logger.Info().Int("applied", len(pending)).Msg("schema up to date")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return err
	}

	var version string
	err := m.db.QueryRowContext(ctx,
		`SELECT version FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		m.logger.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get latest migration: %w", err)
	}

	all, err := LoadMigrations(m.fsys)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	idx := sort.Search(len(all), func(i int) bool { return all[i].Version >= version })
	if idx == len(all) || all[idx].Version != version {
		return fmt.Errorf("applied migration %s has no file", version)
	}
	mig := all[idx]

	err = m.inTx(ctx, mig.Down, `DELETE FROM public.schema_migrations WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("roll back %s: %w", mig.Filename(), err)
	}
	m.logger.Info().Str("version", version).Str("name", mig.Name).Msg("rolled back migration")
	return nil
}

// Pending lists the up files not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	pending, err := m.pending(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pending))
	for _, mig := range pending {
		names = append(names, mig.Filename())
	}
	return names, nil
}

func (m *Migrator) pending(ctx context.Context) ([]Migration, error) {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get applied versions: %w", err)
	}
	all, err := LoadMigrations(m.fsys)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return Unapplied(all, applied), nil
}

// Unapplied filters migrations down to those whose version is not in
// applied, keeping order.
func Unapplied(all []Migration, applied map[string]bool) []Migration {
	var out []Migration
	for _, mig := range all {
		if !applied[mig.Version] {
			out = append(out, mig)
		}
	}
	return out
}

// inTx runs a migration body and its bookkeeping statement atomically.
func (m *Migrator) inTx(ctx context.Context, body, record string, args ...interface{}) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func (m *Migrator) ensureMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version    TEXT PRIMARY KEY,
			filename   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
