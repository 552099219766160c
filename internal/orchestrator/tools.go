package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voxgate/voxgate/internal/dbquery"
)

// Tool names exposed to the model. The set is fixed: read-only safety comes
// from this narrow surface, never from inspecting model-authored SQL.
const (
	toolQueryTable     = "query_table"
	toolQueryTableJoin = "query_table_with_join"
	toolListTables     = "list_tables"
	toolDescribeTable  = "describe_table"
)

type queryTableArgs struct {
	TableName string         `json:"table_name"`
	Filters   map[string]any `json:"filters"`
	Limit     int            `json:"limit"`
}

type queryJoinArgs struct {
	TableName  string         `json:"table_name"`
	JoinTable  string         `json:"join_table"`
	JoinColumn string         `json:"join_column"`
	Filters    map[string]any `json:"filters"`
	Limit      int            `json:"limit"`
}

type describeTableArgs struct {
	TableName string `json:"table_name"`
}

// toolDefinitions builds the schema-described tool registry sent with every
// model call.
func toolDefinitions() []openai.Tool {
	filtersSchema := map[string]any{
		"type":        "object",
		"description": "Equality filters: column name to required value.",
		"additionalProperties": map[string]any{
			"type": []string{"string", "number", "boolean"},
		},
	}
	limitSchema := map[string]any{
		"type":        "integer",
		"description": "Maximum rows to return. The server enforces an upper bound.",
	}

	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolQueryTable,
				Description: "Read rows from one table or view with equality filters and a row limit.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"table_name": map[string]any{"type": "string"},
						"filters":    filtersSchema,
						"limit":      limitSchema,
					},
					"required": []string{"table_name"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolQueryTableJoin,
				Description: "Read rows across two tables. Omit join_column to auto-discover the foreign key from naming conventions.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"table_name":  map[string]any{"type": "string"},
						"join_table":  map[string]any{"type": "string"},
						"join_column": map[string]any{"type": "string"},
						"filters":     filtersSchema,
						"limit":       limitSchema,
					},
					"required": []string{"table_name", "join_table"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolListTables,
				Description: "List the available tables and views.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolDescribeTable,
				Description: "List the column names of one table or view.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"table_name": map[string]any{"type": "string"},
					},
					"required": []string{"table_name"},
				},
			},
		},
	}
}

// executeTool runs one requested call and always returns serialized content —
// failures become structured error payloads the model can read and correct,
// never faults that abort the loop.
func (o *Orchestrator) executeTool(ctx context.Context, call openai.ToolCall) string {
	payload, err := o.dispatch(ctx, call)
	if err != nil {
		return marshalToolPayload(map[string]any{"error": err.Error()})
	}
	return marshalToolPayload(payload)
}

func (o *Orchestrator) dispatch(ctx context.Context, call openai.ToolCall) (any, error) {
	raw := []byte(call.Function.Arguments)
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch call.Function.Name {
	case toolQueryTable:
		var args queryTableArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed arguments: %w", err)
		}
		rows, err := o.executor.QueryTable(ctx, args.TableName, args.Filters, args.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows": emptyIfNil(rows), "count": len(rows)}, nil

	case toolQueryTableJoin:
		var args queryJoinArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed arguments: %w", err)
		}
		rows, err := o.executor.QueryTableWithJoin(ctx, args.TableName, args.JoinTable, args.JoinColumn, args.Filters, args.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows": emptyIfNil(rows), "count": len(rows)}, nil

	case toolListTables:
		tables, err := o.executor.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tables": tables}, nil

	case toolDescribeTable:
		var args describeTableArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("malformed arguments: %w", err)
		}
		cols, err := o.executor.DescribeTable(ctx, args.TableName)
		if err != nil {
			return nil, err
		}
		return map[string]any{"columns": cols}, nil

	default:
		return nil, fmt.Errorf("unknown function: %s", call.Function.Name)
	}
}

func marshalToolPayload(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"result serialization failed"}`
	}
	return string(b)
}

func emptyIfNil(rows []dbquery.Row) []dbquery.Row {
	if rows == nil {
		return []dbquery.Row{}
	}
	return rows
}
