package dbquery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PGClient implements Client against PostgreSQL. Schema facts come from
// information_schema, so the allow-list the executor validates against always
// reflects the live database.
type PGClient struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPGClient connects a pool and verifies reachability. maxConns <= 0 keeps
// the driver default.
func NewPGClient(ctx context.Context, connURL string, maxConns int) (*PGClient, error) {
	cfg, err := poolConfig(connURL, maxConns)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	log.Info().Int32("max_conns", cfg.MaxConns).Msg("postgres data client initialized")
	return &PGClient{pool: pool, schema: "public"}, nil
}

func poolConfig(connURL string, maxConns int) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	return cfg, nil
}

// ListTables returns table and view names in the public schema.
func (c *PGClient) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`, c.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListColumns returns the column names of one table in ordinal order.
func (c *PGClient) ListColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, c.schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Select runs one bounded read. Identifiers in the spec were validated by the
// executor against introspection; values are always bound parameters.
func (c *PGClient) Select(ctx context.Context, spec SelectSpec) ([]Row, error) {
	sql, args := buildSelect(spec)

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", spec.Table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Ping checks database reachability.
func (c *PGClient) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close releases the connection pool.
func (c *PGClient) Close() {
	c.pool.Close()
}

// buildSelect assembles the parameterized query for a spec. Filter values are
// never interpolated; identifiers are quoted.
func buildSelect(spec SelectSpec) (string, []any) {
	var sb strings.Builder
	base := quoteIdent(spec.Table)

	sb.WriteString("SELECT " + base + ".*")
	if spec.Join != nil {
		// Join columns are selected one by one under table-prefixed aliases;
		// a bare join.* would let shared names like "id" overwrite the base
		// table's values in the result map.
		jt := quoteIdent(spec.Join.Table)
		for _, col := range spec.Join.Columns {
			sb.WriteString(", " + jt + "." + quoteIdent(col) +
				" AS " + quoteIdent(spec.Join.Table+"_"+col))
		}
	}
	sb.WriteString(" FROM " + base)

	if j := spec.Join; j != nil {
		sb.WriteString(fmt.Sprintf(" JOIN %s ON %s.%s = %s.%s",
			quoteIdent(j.Table),
			base, quoteIdent(j.BaseColumn),
			quoteIdent(j.Table), quoteIdent(j.JoinColumn)))
	}

	args := make([]any, 0, len(spec.Filters))
	if len(spec.Filters) > 0 {
		cols := make([]string, 0, len(spec.Filters))
		for col := range spec.Filters {
			cols = append(cols, col)
		}
		// Deterministic clause order keeps the statement cacheable.
		sort.Strings(cols)

		sb.WriteString(" WHERE ")
		for i, col := range cols {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			args = append(args, spec.Filters[col])
			sb.WriteString(fmt.Sprintf("%s.%s = $%d", base, quoteIdent(col), len(args)))
		}
	}

	args = append(args, spec.Limit)
	sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))

	return sb.String(), args
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
