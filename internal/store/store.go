// Package store exports flattened vertex tables to SQL databases.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/woozymasta/mapcomp/internal/flatten"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store is an open database connection.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to a PostgreSQL DSN (postgres://...) or a SQLite file
// (sqlite://path or a plain path).
func Open(dsn string) (*Store, error) {
	driver, source := "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source = "postgres", dsn
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// placeholder returns the n-th (1-based) bind parameter of the driver.
func (s *Store) placeholder(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// transaction executes fn within a database transaction.
func (s *Store) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var unsafeIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// Ident lowercases name and replaces everything but letters, digits and
// underscores. The result may still be a reserved word such as order, so
// statements always pass it through quote.
func Ident(name string) string {
	s := strings.Trim(unsafeIdent.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "c_" + s
	}
	return s
}

// quote wraps an Ident result in double quotes, valid in both PostgreSQL and SQLite.
func quote(id string) string { return `"` + id + `"` }

var baseColumns = []string{"feature_id", "x", "y", "vertex_order", "piece", "hole", "part_grp"}

// columnType infers an SQL type from the first non-nil value of column ci.
func columnType(t *flatten.Table, ci int) string {
	for _, r := range t.Rows {
		if ci >= len(r.Attrs) || r.Attrs[ci] == nil {
			continue
		}
		switch r.Attrs[ci].(type) {
		case float64, int:
			return "DOUBLE PRECISION"
		case bool:
			return "BOOLEAN"
		}
		return "TEXT"
	}
	return "TEXT"
}

// ExportTable replaces table name with the rows of t and returns the number of rows written.
func (s *Store) ExportTable(ctx context.Context, name string, t *flatten.Table) (int, error) {
	table := Ident(name)

	cols := append([]string{}, baseColumns...)
	defs := []string{
		`"feature_id" TEXT NOT NULL`,
		`"x" DOUBLE PRECISION NOT NULL`,
		`"y" DOUBLE PRECISION NOT NULL`,
		`"vertex_order" INTEGER NOT NULL`,
		`"piece" INTEGER NOT NULL`,
		`"hole" BOOLEAN NOT NULL`,
		`"part_grp" TEXT NOT NULL`,
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	for i, c := range t.Columns {
		id := Ident(c)
		for seen[id] {
			id += "_"
		}
		seen[id] = true
		cols = append(cols, id)
		defs = append(defs, quote(id)+" "+columnType(t, i))
	}

	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		marks[i] = s.placeholder(i + 1)
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quote(table), strings.Join(defs, ", "))); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		args := make([]any, len(cols))
		for _, r := range t.Rows {
			args[0], args[1], args[2] = r.ID, r.X, r.Y
			args[3], args[4], args[5], args[6] = r.Order, r.Piece, r.Hole, r.PartGroup
			for i := range t.Columns {
				args[len(baseColumns)+i] = nil
				if i < len(r.Attrs) {
					args[len(baseColumns)+i] = r.Attrs[i]
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", table, err)
	}

	log.Info().
		Str("driver", s.driver).
		Str("table", table).
		Int("rows", len(t.Rows)).
		Msg("Vertex table exported")

	return len(t.Rows), nil
}
