package dbquery

import "strings"

// joinCandidate is one naming-convention strategy. An explicit ordered list
// keeps the search testable and extensible.
type joinCandidate struct {
	column string
	// onJoinTable: the candidate column lives on the join table and points at
	// base.id; otherwise it lives on the base table and points at join.id.
	onJoinTable bool
}

// joinCandidates returns the conventions in priority order for linking base
// to join. For materials ↔ material_prices the first candidate resolves
// material_prices.material_id against materials.id.
func joinCandidates(base, join string) []joinCandidate {
	return []joinCandidate{
		{column: singular(base) + "_id", onJoinTable: true},
		{column: singular(join) + "_id", onJoinTable: false},
		{column: base + "_id", onJoinTable: true},
		{column: join + "_id", onJoinTable: false},
	}
}

// resolveJoin picks the first candidate whose column exists on the expected
// side. On failure it returns the attempted pattern list for the error.
func resolveJoin(base, join string, baseCols, joinCols []string) (*JoinSpec, []string) {
	attempted := make([]string, 0, 4)
	for _, c := range joinCandidates(base, join) {
		side := base
		cols := baseCols
		if c.onJoinTable {
			side = join
			cols = joinCols
		}
		attempted = append(attempted, side+"."+c.column)

		if !hasColumn(cols, c.column) {
			continue
		}
		if c.onJoinTable {
			return &JoinSpec{Table: join, BaseColumn: "id", JoinColumn: c.column}, nil
		}
		return &JoinSpec{Table: join, BaseColumn: c.column, JoinColumn: "id"}, nil
	}
	return nil, attempted
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// singular strips a plural suffix the way the table-naming conventions in the
// backing schema use them: categories → category, materials → material.
func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ses"):
		return strings.TrimSuffix(name, "es")
	case strings.HasSuffix(name, "s") && !strings.HasSuffix(name, "ss"):
		return strings.TrimSuffix(name, "s")
	default:
		return name
	}
}
