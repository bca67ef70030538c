// Package migrate applies embedded SQL migration files and records them in a
// schema_migrations table. Each storage backend supplies its own dialect.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"
)

// Dialect holds the backend specific SQL used by the runner.
type Dialect struct {
	Name string
	// CreateTable creates schema_migrations if it does not exist.
	CreateTable string
	// Insert records an applied version, with a single bind for the version.
	Insert string
	// Separator splits a file into statements. Empty runs the file as one statement.
	// ";" splits on lines ending with a semicolon, "/" on lines holding only a slash.
	Separator string
	// IgnoreError reports errors that mean the object already exists.
	IgnoreError func(error) bool
}

// Runner applies migrations from dir in fsys against db.
type Runner struct {
	db      *sql.DB
	fsys    fs.FS
	dir     string
	dialect Dialect
}

// New creates a Runner.
func New(db *sql.DB, fsys fs.FS, dir string, dialect Dialect) *Runner {
	return &Runner{db: db, fsys: fsys, dir: dir, dialect: dialect}
}

func (r *Runner) ensureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.CreateTable); err != nil {
		if r.dialect.IgnoreError == nil || !r.dialect.IgnoreError(err) {
			return fmt.Errorf("create migrations table: %w", err)
		}
	}
	return nil
}

// Applied returns applied migration versions in order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns sorted SQL migration filenames in fsys/dir not present in applied.
func Pending(fsys fs.FS, dir string, applied []string) ([]string, error) {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies all pending migrations and returns the versions it applied.
func (r *Runner) Migrate(ctx context.Context) ([]string, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	files, err := Pending(r.fsys, r.dir, applied)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, file := range files {
		if err := r.apply(ctx, file); err != nil {
			return done, err
		}
		log.Printf("%s: applied migration %s", r.dialect.Name, file)
		done = append(done, file)
	}
	return done, nil
}

func (r *Runner) apply(ctx context.Context, file string) error {
	content, err := fs.ReadFile(r.fsys, path.Join(r.dir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for %s: %w", file, err)
	}
	defer tx.Rollback()

	for _, stmt := range SplitStatements(string(content), r.dialect.Separator) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if r.dialect.IgnoreError != nil && r.dialect.IgnoreError(err) {
				continue
			}
			return fmt.Errorf("execute migration %s: %w", file, err)
		}
	}

	if _, err := tx.ExecContext(ctx, r.dialect.Insert, file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

// SplitStatements splits a migration file into executable statements.
// Chunks holding only comments or whitespace are dropped.
func SplitStatements(content, sep string) []string {
	if sep == "" {
		if isBlank(content) {
			return nil
		}
		return []string{strings.TrimSpace(content)}
	}

	var stmts []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); !isBlank(s) {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case sep == "/" && trimmed == "/":
			flush()
		case sep == ";" && strings.HasSuffix(trimmed, ";") && !strings.HasPrefix(trimmed, "--"):
			cur.WriteString(strings.TrimSuffix(strings.TrimRight(line, " \t\r"), ";"))
			flush()
		default:
			cur.WriteString(line)
			cur.WriteByte('\n')
		}
	}
	flush()
	return stmts
}

func isBlank(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		t := strings.TrimSpace(line)
		if t != "" && !strings.HasPrefix(t, "--") {
			return false
		}
	}
	return true
}
