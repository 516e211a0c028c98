package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// ParseOperator converts an operator string such as ">=" or "not in" to an Operator
func ParseOperator(op string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(op)) {
	case "=", "==":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEqual, nil
	case "IN":
		return OpIn, nil
	case "NOT IN":
		return OpNotIn, nil
	case "LIKE":
		return OpLike, nil
	case "ILIKE":
		return OpILike, nil
	case "IS NULL":
		return OpIsNull, nil
	case "IS NOT NULL":
		return OpIsNotNull, nil
	case "BETWEEN":
		return OpBetween, nil
	default:
		return OpEqual, fmt.Errorf("unknown operator: %s", op)
	}
}

// Condition represents a WHERE condition
type Condition struct {
	Column   string
	Operator Operator
	Value    interface{}
	Or       bool // true for OR, false for AND

	// Group, when set, renders as a parenthesised list and replaces the
	// column comparison
	Group []*Condition
}

// argWriter collects bound arguments and renders dialect placeholders
type argWriter struct {
	dialect Dialect
	args    []interface{}
}

func (w *argWriter) bind(v interface{}) string {
	w.args = append(w.args, v)
	return w.dialect.Placeholder(len(w.args))
}

// conditionToSQL converts a condition to SQL with parameterized values
func conditionToSQL(cond *Condition, w *argWriter) (string, error) {
	if len(cond.Group) > 0 {
		inner, err := conditionsToSQL(cond.Group, w)
		if err != nil {
			return "", err
		}
		return "(" + inner + ")", nil
	}

	col := quoteIdentifier(cond.Column)

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpLike:
		return fmt.Sprintf("%s %s %s", col, cond.Operator, w.bind(cond.Value)), nil

	case OpILike:
		if !w.dialect.SupportsILike() {
			return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", col, w.bind(cond.Value)), nil
		}
		return fmt.Sprintf("%s ILIKE %s", col, w.bind(cond.Value)), nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator requires []interface{} value", cond.Operator)
		}
		if len(values) == 0 {
			// IN () matches nothing, NOT IN () matches everything
			if cond.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}

		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = w.bind(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, cond.Operator, strings.Join(placeholders, ", ")), nil

	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", col, cond.Operator), nil

	case OpBetween:
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, w.bind(values[0]), w.bind(values[1])), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}

// conditionsToSQL joins a list of conditions with their AND/OR connectors
func conditionsToSQL(conds []*Condition, w *argWriter) (string, error) {
	var sb strings.Builder
	for i, cond := range conds {
		if i > 0 {
			if cond.Or {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		sql, err := conditionToSQL(cond, w)
		if err != nil {
			return "", fmt.Errorf("failed to build condition: %w", err)
		}
		sb.WriteString(sql)
	}
	return sb.String(), nil
}
