package duckdb

import (
	"fmt"
	"strings"
)

// Plan is a lazily built read-only query over a relation. Nothing executes
// until the SQL is handed to the engine, so stages can be composed freely:
// filter, group, aggregate, sort and limit.
type Plan struct {
	from    string
	selects []string
	filters []string
	args    []any
	groupBy []string
	orderBy []string
	limit   int
}

// From starts a plan over the given relation (a table, view or
// parenthesized subquery with alias).
func From(relation string) *Plan {
	return &Plan{from: relation, limit: -1}
}

// Clone returns an independent copy of p.
func (p *Plan) Clone() *Plan {
	c := *p
	c.selects = append([]string(nil), p.selects...)
	c.filters = append([]string(nil), p.filters...)
	c.args = append([]any(nil), p.args...)
	c.groupBy = append([]string(nil), p.groupBy...)
	c.orderBy = append([]string(nil), p.orderBy...)
	return &c
}

// Select sets the projected expressions.
func (p *Plan) Select(exprs ...string) *Plan {
	p.selects = append(p.selects, exprs...)
	return p
}

// Where adds a filter. Filters are ANDed together.
func (p *Plan) Where(cond string, args ...any) *Plan {
	p.filters = append(p.filters, cond)
	p.args = append(p.args, args...)
	return p
}

// GroupBy sets the grouping keys.
func (p *Plan) GroupBy(keys ...string) *Plan {
	p.groupBy = append(p.groupBy, keys...)
	return p
}

// OrderBy adds sort terms, e.g. "hits DESC".
func (p *Plan) OrderBy(terms ...string) *Plan {
	p.orderBy = append(p.orderBy, terms...)
	return p
}

// Limit caps the number of rows. A negative n removes the cap.
func (p *Plan) Limit(n int) *Plan {
	p.limit = n
	return p
}

// SQL renders the plan and its bound arguments.
func (p *Plan) SQL() (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(p.selects) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(p.selects, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(p.from)
	if len(p.filters) > 0 {
		b.WriteString(" WHERE ")
		for i, f := range p.filters {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(" + f + ")")
		}
	}
	if len(p.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(p.groupBy, ", "))
	}
	if len(p.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(p.orderBy, ", "))
	}
	if p.limit >= 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.limit)
	}
	return b.String(), append([]any(nil), p.args...)
}

func (p *Plan) String() string {
	q, _ := p.SQL()
	return q
}
