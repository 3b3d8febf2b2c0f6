package database

import (
	"fmt"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 1_000_000
)

// ListParams carries paging, sorting and free text search for list endpoints.
type ListParams struct {
	Page   int
	Limit  int
	Sort   string
	Order  string
	Search string
}

// Normalize clamps paging values into range.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	p.Order = strings.ToLower(strings.TrimSpace(p.Order))
	if p.Order != "asc" && p.Order != "desc" {
		p.Order = ""
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Offset is the row offset for the current page.
func (p ListParams) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// OrderBy resolves the requested sort against an allow list of column
// expressions. Unknown columns fall back to fallback.
func (p ListParams) OrderBy(allowed map[string]string, fallback string) string {
	column, ok := allowed[p.Sort]
	if !ok {
		return fallback
	}
	order := "ASC"
	if p.Order == "desc" {
		order = "DESC"
	}
	return fmt.Sprintf("%s %s", column, order)
}

// ContainsPattern builds an ILIKE pattern matching s anywhere, escaping wildcards.
func ContainsPattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(s) + "%"
}

// Where accumulates AND-ed predicates with positional arguments.
type Where struct {
	clauses []string
	args    []any
}

// NewWhere starts a predicate set scoped to an organization.
func NewWhere(orgColumn, orgID string) *Where {
	w := &Where{}
	w.Add(orgColumn+" = ?", orgID)
	return w
}

// Add appends a predicate. Each ? is replaced by the next positional placeholder.
func (w *Where) Add(clause string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

// SQL returns the WHERE clause including the keyword.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the positional arguments collected so far.
func (w *Where) Args() []any {
	return append([]any(nil), w.args...)
}

// Next returns the placeholder that follows the collected arguments.
func (w *Where) Next(offset int) string {
	return fmt.Sprintf("$%d", len(w.args)+offset)
}

// AddSearch matches pattern against any of columns with a single placeholder.
func (w *Where) AddSearch(pattern string, columns ...string) {
	if len(columns) == 0 {
		return
	}
	w.args = append(w.args, pattern)
	placeholder := fmt.Sprintf("$%d", len(w.args))
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = col + " ILIKE " + placeholder
	}
	w.clauses = append(w.clauses, "("+strings.Join(parts, " OR ")+")")
}
