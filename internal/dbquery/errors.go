package dbquery

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when a table, view or column named by the model
// does not exist in the introspected schema.
type NotFoundError struct {
	Entity string // "table" or "column"
	Name   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Name)
}

// JoinNotResolvableError reports that no foreign-key naming convention linked
// the two tables. It names every attempted pattern so the caller can retry
// with an explicit join column.
type JoinNotResolvableError struct {
	Table     string
	JoinTable string
	Attempted []string
}

func (e *JoinNotResolvableError) Error() string {
	return fmt.Sprintf("cannot resolve join column between %s and %s, tried: %s",
		e.Table, e.JoinTable, strings.Join(e.Attempted, ", "))
}
