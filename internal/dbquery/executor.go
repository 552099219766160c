// Package dbquery turns model-supplied, loosely-typed tool arguments into
// bounded, read-only reads against the relational store. Safety comes from
// the shape of the interface: the executor only ever assembles table, filter,
// limit and join clauses — it has no code path capable of mutation and never
// accepts SQL text. Identifiers are validated against live schema
// introspection before use; filter values stay opaque bound parameters.
package dbquery

import (
	"context"
	"fmt"
)

// DefaultMaxRows caps result sets regardless of what the model asks for.
const DefaultMaxRows = 100

// Row is one result record.
type Row map[string]any

// JoinSpec declares an inner join: base.BaseColumn = Table.JoinColumn.
// Columns lists the join table's columns; they are selected individually and
// aliased with the table name so shared names like "id" cannot collapse into
// the base table's values.
type JoinSpec struct {
	Table      string
	BaseColumn string
	JoinColumn string
	Columns    []string
}

// SelectSpec is the only query shape the data client accepts.
type SelectSpec struct {
	Table   string
	Filters map[string]any
	Limit   int
	Join    *JoinSpec
}

// Client is the thin data-access collaborator: list tables and views,
// describe columns, run a bounded filtered read.
type Client interface {
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
	Select(ctx context.Context, spec SelectSpec) ([]Row, error)
}

// Executor validates and executes the four query operations exposed to the
// orchestration loop.
type Executor struct {
	client  Client
	maxRows int
}

// NewExecutor creates an executor over the given client. maxRows <= 0 falls
// back to DefaultMaxRows.
func NewExecutor(client Client, maxRows int) *Executor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Executor{client: client, maxRows: maxRows}
}

// ListTables returns the live table and view names.
func (e *Executor) ListTables(ctx context.Context) ([]string, error) {
	return e.client.ListTables(ctx)
}

// DescribeTable returns the column names of an existing table or view.
func (e *Executor) DescribeTable(ctx context.Context, table string) ([]string, error) {
	if err := e.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	return e.client.ListColumns(ctx, table)
}

// QueryTable runs a single-table equality-filtered read with a clamped limit.
func (e *Executor) QueryTable(ctx context.Context, table string, filters map[string]any, limit int) ([]Row, error) {
	if err := e.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	if err := e.ensureFilterColumns(ctx, table, filters); err != nil {
		return nil, err
	}
	return e.client.Select(ctx, SelectSpec{
		Table:   table,
		Filters: filters,
		Limit:   e.clampLimit(limit),
	})
}

// QueryTableWithJoin reads across two tables. When joinColumn is empty the
// linking column is discovered from foreign-key naming conventions; when no
// convention resolves, the error names every attempted pattern so the model
// can retry with an explicit column.
func (e *Executor) QueryTableWithJoin(ctx context.Context, table, joinTable, joinColumn string, filters map[string]any, limit int) ([]Row, error) {
	if err := e.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	if err := e.ensureTable(ctx, joinTable); err != nil {
		return nil, err
	}

	baseCols, err := e.client.ListColumns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	joinCols, err := e.client.ListColumns(ctx, joinTable)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", joinTable, err)
	}

	var join *JoinSpec
	if joinColumn != "" {
		// The opposite side of an explicit join column is always "id"; its
		// absence must surface as a structured error, not a SQL failure.
		switch {
		case hasColumn(joinCols, joinColumn):
			if !hasColumn(baseCols, "id") {
				return nil, &NotFoundError{Entity: "column", Name: table + ".id"}
			}
			join = &JoinSpec{Table: joinTable, BaseColumn: "id", JoinColumn: joinColumn}
		case hasColumn(baseCols, joinColumn):
			if !hasColumn(joinCols, "id") {
				return nil, &NotFoundError{Entity: "column", Name: joinTable + ".id"}
			}
			join = &JoinSpec{Table: joinTable, BaseColumn: joinColumn, JoinColumn: "id"}
		default:
			return nil, &NotFoundError{Entity: "column", Name: joinColumn}
		}
	} else {
		var attempted []string
		join, attempted = resolveJoin(table, joinTable, baseCols, joinCols)
		if join == nil {
			return nil, &JoinNotResolvableError{Table: table, JoinTable: joinTable, Attempted: attempted}
		}
	}
	join.Columns = joinCols

	if err := e.ensureFilterColumns(ctx, table, filters); err != nil {
		return nil, err
	}

	return e.client.Select(ctx, SelectSpec{
		Table:   table,
		Filters: filters,
		Limit:   e.clampLimit(limit),
		Join:    join,
	})
}

// ensureTable checks the name against the introspected allow-list — the
// model's claim is never trusted verbatim.
func (e *Executor) ensureTable(ctx context.Context, table string) error {
	tables, err := e.client.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if t == table {
			return nil
		}
	}
	return &NotFoundError{Entity: "table", Name: table}
}

func (e *Executor) ensureFilterColumns(ctx context.Context, table string, filters map[string]any) error {
	if len(filters) == 0 {
		return nil
	}
	cols, err := e.client.ListColumns(ctx, table)
	if err != nil {
		return fmt.Errorf("describe %s: %w", table, err)
	}
	for name := range filters {
		if !hasColumn(cols, name) {
			return &NotFoundError{Entity: "column", Name: name}
		}
	}
	return nil
}

func (e *Executor) clampLimit(limit int) int {
	if limit <= 0 || limit > e.maxRows {
		return e.maxRows
	}
	return limit
}
