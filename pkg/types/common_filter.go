package types

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq        CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq     CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt        CommonFilterOperator = "lt"
	CommonFilterOperatorLte       CommonFilterOperator = "lte"
	CommonFilterOperatorGt        CommonFilterOperator = "gt"
	CommonFilterOperatorGte       CommonFilterOperator = "gte"
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorRange     CommonFilterOperator = "range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// ErrFilterField is returned when a filter or sort references a column that
// is not in the caller's whitelist.
var ErrFilterField = errors.New("filter field not allowed")

type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Build constructs a GORM expression.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}

	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: f.Field, Value: value}.Build(builder)
	case CommonFilterOperatorRange, CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			return
		}
		// half-open for dates so consecutive day windows do not overlap
		upper := clause.Expression(clause.Lte{Column: f.Field, Value: f.Values[1]})
		if f.Operator == CommonFilterOperatorDateRange {
			upper = clause.Lt{Column: f.Field, Value: f.Values[1]}
		}
		clause.And(clause.Gte{Column: f.Field, Value: f.Values[0]}, upper).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: f.Field, Values: f.Values}.Build(builder)
	default:
		return
	}
}

// FiltersAnd combines filters into a single clause.Expression.
type FiltersAnd struct{ Filters []*CommonFilter }

func (w FiltersAnd) Build(builder clause.Builder) {
	if len(w.Filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.Filters))
	for _, f := range w.Filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// ListQuery is the paginated, filterable list request shared by the
// merchant list endpoints.
type ListQuery struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

const (
	DefaultListSize = 20
	MaxListSize     = 200
)

// Normalize clamps pagination and checks every filter and the sort column
// against allowed. Column names end up in SQL unquoted, so nothing outside
// the whitelist may pass.
func (q *ListQuery) Normalize(allowed map[string]bool) error {
	if q.Size <= 0 {
		q.Size = DefaultListSize
	}
	if q.Size > MaxListSize {
		q.Size = MaxListSize
	}
	if q.From < 0 {
		q.From = 0
	}
	for _, f := range q.Filters {
		if f == nil {
			return fmt.Errorf("%w: nil filter", ErrFilterField)
		}
		if !allowed[f.Field] {
			return fmt.Errorf("%w: %q", ErrFilterField, f.Field)
		}
	}
	if q.SortBy == "" {
		q.SortBy = "created_at"
	}
	if !allowed[q.SortBy] {
		return fmt.Errorf("%w: sort %q", ErrFilterField, q.SortBy)
	}
	q.SortOrder = strings.ToLower(q.SortOrder)
	if q.SortOrder != "asc" {
		q.SortOrder = "desc"
	}
	return nil
}

// OrderBy returns the validated ORDER BY column.
func (q *ListQuery) OrderBy() clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: q.SortBy}, Desc: q.SortOrder == "desc"}
}
