package querybuilder

import (
	"fmt"
	"strings"
)

// QueryBuilder provides a fluent interface for composing read-only analytical
// queries with positional parameters. The analytics core never writes to the
// OLAP store, so only SELECT is supported.
type QueryBuilder struct {
	table      string
	columns    []string
	conditions []Condition
	orderBy    []OrderBy
	groupBy    []string
	limit      *int
}

// Condition represents a WHERE condition
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	Logical  LogicalOperator
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
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	In
	IsNotNull
	Between
)

// LogicalOperator represents logical operators (AND, OR)
type LogicalOperator int

const (
	And LogicalOperator = iota
	Or
)

// Direction represents sort direction
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Select starts a SELECT query
func Select(columns ...string) *QueryBuilder {
	return &QueryBuilder{columns: columns}
}

// From sets the source table
func (qb *QueryBuilder) From(table string) *QueryBuilder {
	qb.table = table
	return qb
}

// Where adds a WHERE condition with AND logic
func (qb *QueryBuilder) Where(column string, operator Operator, value interface{}) *QueryBuilder {
	return qb.addCondition(column, operator, value, And)
}

// OrWhere adds a WHERE condition with OR logic
func (qb *QueryBuilder) OrWhere(column string, operator Operator, value interface{}) *QueryBuilder {
	return qb.addCondition(column, operator, value, Or)
}

// WhereEqual is a convenience method for equality conditions
func (qb *QueryBuilder) WhereEqual(column string, value interface{}) *QueryBuilder {
	return qb.Where(column, Equal, value)
}

// WhereIn adds an IN condition
func (qb *QueryBuilder) WhereIn(column string, values []interface{}) *QueryBuilder {
	return qb.Where(column, In, values)
}

// WhereNotNull adds an IS NOT NULL condition
func (qb *QueryBuilder) WhereNotNull(column string) *QueryBuilder {
	return qb.Where(column, IsNotNull, nil)
}

// WhereBetween adds a BETWEEN condition
func (qb *QueryBuilder) WhereBetween(column string, start, end interface{}) *QueryBuilder {
	return qb.Where(column, Between, []interface{}{start, end})
}

// OrderByAsc adds an ORDER BY ASC clause
func (qb *QueryBuilder) OrderByAsc(column string) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, OrderBy{Column: column, Direction: Asc})
	return qb
}

// OrderByDesc adds an ORDER BY DESC clause
func (qb *QueryBuilder) OrderByDesc(column string) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, OrderBy{Column: column, Direction: Desc})
	return qb
}

// GroupBy adds a GROUP BY clause
func (qb *QueryBuilder) GroupBy(columns ...string) *QueryBuilder {
	qb.groupBy = append(qb.groupBy, columns...)
	return qb
}

// Limit sets the LIMIT clause
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	qb.limit = &limit
	return qb
}

// ToSQL generates the SQL query and parameter list
func (qb *QueryBuilder) ToSQL() (string, []interface{}, error) {
	if qb.table == "" {
		return "", nil, fmt.Errorf("table name is required")
	}

	var query strings.Builder
	var params []interface{}
	paramIndex := 1

	query.WriteString("SELECT ")
	if len(qb.columns) == 0 {
		query.WriteString("*")
	} else {
		query.WriteString(strings.Join(qb.columns, ", "))
	}

	query.WriteString(" FROM ")
	query.WriteString(qb.table)

	whereClause, whereParams, newIndex := qb.buildConditions(qb.conditions, paramIndex)
	if whereClause != "" {
		query.WriteString(" WHERE ")
		query.WriteString(whereClause)
		params = append(params, whereParams...)
		paramIndex = newIndex
	}

	if len(qb.groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		query.WriteString(strings.Join(qb.groupBy, ", "))
	}

	if len(qb.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		orderClauses := make([]string, len(qb.orderBy))
		for i, order := range qb.orderBy {
			direction := "ASC"
			if order.Direction == Desc {
				direction = "DESC"
			}
			orderClauses[i] = fmt.Sprintf("%s %s", order.Column, direction)
		}
		query.WriteString(strings.Join(orderClauses, ", "))
	}

	if qb.limit != nil {
		query.WriteString(fmt.Sprintf(" LIMIT $%d", paramIndex))
		params = append(params, *qb.limit)
		paramIndex++
	}

	return query.String(), params, nil
}

func (qb *QueryBuilder) addCondition(column string, operator Operator, value interface{}, logical LogicalOperator) *QueryBuilder {
	qb.conditions = append(qb.conditions, Condition{
		Column:   column,
		Operator: operator,
		Value:    value,
		Logical:  logical,
	})
	return qb
}

func (qb *QueryBuilder) buildConditions(conditions []Condition, startIndex int) (string, []interface{}, int) {
	if len(conditions) == 0 {
		return "", nil, startIndex
	}

	var parts []string
	var params []interface{}
	paramIndex := startIndex

	for i, condition := range conditions {
		var part string
		var conditionParams []interface{}

		if i > 0 {
			if condition.Logical == Or {
				part = "OR "
			} else {
				part = "AND "
			}
		}

		switch condition.Operator {
		case Equal:
			part += fmt.Sprintf("%s = $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case NotEqual:
			part += fmt.Sprintf("%s != $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case GreaterThan:
			part += fmt.Sprintf("%s > $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case GreaterThanOrEqual:
			part += fmt.Sprintf("%s >= $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case LessThan:
			part += fmt.Sprintf("%s < $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case LessThanOrEqual:
			part += fmt.Sprintf("%s <= $%d", condition.Column, paramIndex)
			conditionParams = append(conditionParams, condition.Value)
			paramIndex++
		case In:
			if values, ok := condition.Value.([]interface{}); ok {
				placeholders := make([]string, len(values))
				for j, value := range values {
					placeholders[j] = fmt.Sprintf("$%d", paramIndex)
					conditionParams = append(conditionParams, value)
					paramIndex++
				}
				part += fmt.Sprintf("%s IN (%s)", condition.Column, strings.Join(placeholders, ", "))
			}
		case IsNotNull:
			part += fmt.Sprintf("%s IS NOT NULL", condition.Column)
		case Between:
			if values, ok := condition.Value.([]interface{}); ok && len(values) == 2 {
				part += fmt.Sprintf("%s BETWEEN $%d AND $%d", condition.Column, paramIndex, paramIndex+1)
				conditionParams = append(conditionParams, values[0], values[1])
				paramIndex += 2
			}
		}

		parts = append(parts, part)
		params = append(params, conditionParams...)
	}

	return strings.Join(parts, " "), params, paramIndex
}
