package querybuilder

import (
	"fmt"
	"strings"
)

// QueryBuilder composes parameterized SELECT statements for the list
// endpoints. Placeholders are numbered in the order conditions are added.
type QueryBuilder struct {
	table      string
	columns    []string
	conditions []Condition
	orderBy    []OrderBy
	limit      *int
	offset     *int
}

// Condition is one WHERE predicate
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	// Raw holds a literal predicate for Operator == Raw
	Raw string
}

// OrderBy represents an ORDER BY clause
type OrderBy struct {
	Column    string
	Direction Direction
}

// Operator represents SQL comparison operators
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThanOrEqual
	LessThanOrEqual
	AnyOf
	IsNull
	IsNotNull
	Raw
)

// Direction represents sort direction
type Direction int

const (
	Asc Direction = iota
	Desc
)

// New creates a new QueryBuilder instance
func New() *QueryBuilder {
	return &QueryBuilder{}
}

// Select sets the projected columns; none selects *
func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	qb.columns = columns
	return qb
}

// From sets the table, optionally with an alias ("breach_incidents i")
func (qb *QueryBuilder) From(table string) *QueryBuilder {
	qb.table = table
	return qb
}

// Where adds a predicate; all predicates are joined with AND
func (qb *QueryBuilder) Where(column string, operator Operator, value interface{}) *QueryBuilder {
	qb.conditions = append(qb.conditions, Condition{Column: column, Operator: operator, Value: value})
	return qb
}

// WhereEqual is a convenience method for equality conditions
func (qb *QueryBuilder) WhereEqual(column string, value interface{}) *QueryBuilder {
	return qb.Where(column, Equal, value)
}

// WhereAny matches column against a slice parameter with = ANY($n)
func (qb *QueryBuilder) WhereAny(column string, values interface{}) *QueryBuilder {
	return qb.Where(column, AnyOf, values)
}

// WhereNull adds an IS NULL condition
func (qb *QueryBuilder) WhereNull(column string) *QueryBuilder {
	return qb.Where(column, IsNull, nil)
}

// WhereRaw adds a literal predicate that takes no parameters
func (qb *QueryBuilder) WhereRaw(predicate string) *QueryBuilder {
	qb.conditions = append(qb.conditions, Condition{Operator: Raw, Raw: predicate})
	return qb
}

// OptionalEqual adds column = value unless value is the zero string
func (qb *QueryBuilder) OptionalEqual(column, value string) *QueryBuilder {
	if value == "" {
		return qb
	}
	return qb.WhereEqual(column, value)
}

// OrderBy adds an ORDER BY clause
func (qb *QueryBuilder) OrderBy(column string, direction Direction) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, OrderBy{Column: column, Direction: direction})
	return qb
}

// OrderByAsc adds an ORDER BY ASC clause
func (qb *QueryBuilder) OrderByAsc(column string) *QueryBuilder {
	return qb.OrderBy(column, Asc)
}

// OrderByDesc adds an ORDER BY DESC clause
func (qb *QueryBuilder) OrderByDesc(column string) *QueryBuilder {
	return qb.OrderBy(column, Desc)
}

// Page sets LIMIT and OFFSET
func (qb *QueryBuilder) Page(limit, offset int) *QueryBuilder {
	qb.limit = &limit
	qb.offset = &offset
	return qb
}

// ToSQL generates the SELECT statement and its parameter list
func (qb *QueryBuilder) ToSQL() (string, []interface{}, error) {
	if qb.table == "" {
		return "", nil, fmt.Errorf("table name is required for SELECT query")
	}

	var query strings.Builder
	query.WriteString("SELECT ")
	if len(qb.columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(qb.columns, ", "))
	}
	query.WriteString(" FROM ")
	query.WriteString(qb.table)

	where, params, next, err := qb.buildConditions(1)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		query.WriteString(" WHERE ")
		query.WriteString(where)
	}

	if len(qb.orderBy) > 0 {
		clauses := make([]string, len(qb.orderBy))
		for i, order := range qb.orderBy {
			direction := "ASC"
			if order.Direction == Desc {
				direction = "DESC"
			}
			clauses[i] = order.Column + " " + direction
		}
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(clauses, ", "))
	}

	if qb.limit != nil {
		fmt.Fprintf(&query, " LIMIT $%d", next)
		params = append(params, *qb.limit)
		next++
	}
	if qb.offset != nil {
		fmt.Fprintf(&query, " OFFSET $%d", next)
		params = append(params, *qb.offset)
	}

	return query.String(), params, nil
}

// CountSQL generates SELECT COUNT(*) with the same predicates, ignoring
// projection, ordering and paging
func (qb *QueryBuilder) CountSQL() (string, []interface{}, error) {
	if qb.table == "" {
		return "", nil, fmt.Errorf("table name is required for COUNT query")
	}
	where, params, _, err := qb.buildConditions(1)
	if err != nil {
		return "", nil, err
	}
	query := "SELECT COUNT(*) FROM " + qb.table
	if where != "" {
		query += " WHERE " + where
	}
	return query, params, nil
}

func (qb *QueryBuilder) buildConditions(startIndex int) (string, []interface{}, int, error) {
	if len(qb.conditions) == 0 {
		return "", nil, startIndex, nil
	}

	parts := make([]string, 0, len(qb.conditions))
	var params []interface{}
	paramIndex := startIndex

	for _, c := range qb.conditions {
		var op string
		switch c.Operator {
		case Equal:
			op = "="
		case NotEqual:
			op = "!="
		case GreaterThanOrEqual:
			op = ">="
		case LessThanOrEqual:
			op = "<="
		case AnyOf:
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", c.Column, paramIndex))
			params = append(params, c.Value)
			paramIndex++
			continue
		case IsNull:
			parts = append(parts, c.Column+" IS NULL")
			continue
		case IsNotNull:
			parts = append(parts, c.Column+" IS NOT NULL")
			continue
		case Raw:
			parts = append(parts, c.Raw)
			continue
		default:
			return "", nil, 0, fmt.Errorf("unsupported operator %d on %s", c.Operator, c.Column)
		}
		parts = append(parts, fmt.Sprintf("%s %s $%d", c.Column, op, paramIndex))
		params = append(params, c.Value)
		paramIndex++
	}

	return strings.Join(parts, " AND "), params, paramIndex, nil
}
