// Package database adapts the application database for schema snapshots,
// restores, and post-rollback verification.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Adapter is the narrow database surface the rollback engine consumes.
type Adapter interface {
	// DumpSchema produces a restorable schema snapshot.
	DumpSchema(ctx context.Context) ([]byte, error)
	// Restore replays a schema snapshot produced by DumpSchema. Destructive.
	Restore(ctx context.Context, dump []byte) error
	// VerifyTables checks that the named core tables exist.
	VerifyTables(ctx context.Context, tables []string) error
	// Ping checks database connectivity.
	Ping(ctx context.Context) error
}

// ValidateDump checks that a schema dump is non-empty and structurally
// plausible before it is accepted as a backup artifact.
func ValidateDump(dump []byte) error {
	s := strings.TrimSpace(string(dump))
	if s == "" {
		return fmt.Errorf("schema dump is empty")
	}
	upper := strings.ToUpper(s)
	if !strings.Contains(upper, "CREATE TABLE") && !strings.Contains(upper, "CREATE SCHEMA") {
		return fmt.Errorf("schema dump contains no DDL statements")
	}
	return nil
}

// Postgres implements Adapter against a PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a Postgres adapter.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping checks database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// DumpSchema reconstructs CREATE TABLE statements for all public tables from
// the information schema. The dump is intentionally schema-only: row data is
// out of scope for rollback snapshots.
func (p *Postgres) DumpSchema(ctx context.Context) ([]byte, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	defer rows.Close()

	tables := make(map[string][]string)
	var order []string
	for rows.Next() {
		var table, column, dataType, nullable string
		if err := rows.Scan(&table, &column, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning schema row: %w", err)
		}
		if _, seen := tables[table]; !seen {
			order = append(order, table)
		}
		col := fmt.Sprintf("%q %s", column, dataType)
		if nullable == "NO" {
			col += " NOT NULL"
		}
		tables[table] = append(tables[table], col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}

	var b strings.Builder
	b.WriteString("-- rollward schema dump\n")
	for _, table := range order {
		fmt.Fprintf(&b, "CREATE TABLE %q (\n    %s\n);\n\n", table, strings.Join(tables[table], ",\n    "))
	}
	return []byte(b.String()), nil
}

// Restore replays a schema dump inside one transaction, dropping each table
// before recreating it.
func (p *Postgres) Restore(ctx context.Context, dump []byte) error {
	if err := ValidateDump(dump); err != nil {
		return fmt.Errorf("refusing to restore: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning restore transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range splitStatements(string(dump)) {
		if table, ok := createdTable(stmt); ok {
			if _, err := tx.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %q CASCADE", table)); err != nil {
				return fmt.Errorf("dropping table %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("replaying statement: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing restore: %w", err)
	}
	return nil
}

// VerifyTables checks that the named tables exist in the public schema.
func (p *Postgres) VerifyTables(ctx context.Context, tables []string) error {
	for _, table := range tables {
		var exists bool
		err := p.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("expected core table %q is absent", table)
		}
	}
	return nil
}

func splitStatements(dump string) []string {
	var stmts []string
	for _, raw := range strings.Split(dump, ";") {
		var lines []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func createdTable(stmt string) (string, bool) {
	upper := strings.ToUpper(stmt)
	if !strings.HasPrefix(upper, "CREATE TABLE") {
		return "", false
	}
	rest := strings.TrimSpace(stmt[len("CREATE TABLE"):])
	if idx := strings.IndexAny(rest, " (\n"); idx > 0 {
		rest = rest[:idx]
	}
	return strings.Trim(rest, `"`), rest != ""
}
