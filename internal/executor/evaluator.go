package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loomery/loom/internal/domain"
)

var comparisonOperators = []string{"==", "!=", ">=", "<=", ">", "<"}

// EvaluateExpression evaluates a condition or edge-guard expression against
// the execution context. Supported forms:
//
//	<operand> <op> <operand>   with op in ==, !=, >, >=, <, <=
//	<operand>                  truthiness
//	!<operand>                 negated truthiness
//
// Operands are literals (true, false, null, numbers, quoted strings) or
// lookups: variables.<path>, results.<node>.<path>, or a bare variable name.
func EvaluateExpression(expr string, ec *domain.ExecutionContext) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, fmt.Errorf("empty expression")
	}

	for _, op := range comparisonOperators {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		left, err := resolveOperand(strings.TrimSpace(expr[:idx]), ec)
		if err != nil {
			return false, err
		}
		right, err := resolveOperand(strings.TrimSpace(expr[idx+len(op):]), ec)
		if err != nil {
			return false, err
		}
		return compare(left, right, op)
	}

	if strings.HasPrefix(expr, "!") {
		value, err := resolveOperand(strings.TrimSpace(expr[1:]), ec)
		if err != nil {
			return false, err
		}
		return !truthy(value), nil
	}

	value, err := resolveOperand(expr, ec)
	if err != nil {
		return false, err
	}
	return truthy(value), nil
}

func resolveOperand(token string, ec *domain.ExecutionContext) (interface{}, error) {
	switch token {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "nil":
		return nil, nil
	}

	if len(token) >= 2 {
		if (token[0] == '\'' && token[len(token)-1] == '\'') || (token[0] == '"' && token[len(token)-1] == '"') {
			return token[1 : len(token)-1], nil
		}
	}

	if number, err := strconv.ParseFloat(token, 64); err == nil {
		return number, nil
	}

	parts := strings.Split(token, ".")
	switch parts[0] {
	case "variables":
		if len(parts) < 2 {
			return nil, fmt.Errorf("incomplete variable lookup %q", token)
		}
		value, ok := ec.Variable(parts[1])
		if !ok {
			return nil, nil
		}
		return walkPath(value, parts[2:]), nil
	case "results":
		if len(parts) < 2 {
			return nil, fmt.Errorf("incomplete result lookup %q", token)
		}
		value, ok := ec.Result(parts[1])
		if !ok {
			return nil, nil
		}
		return walkPath(value, parts[2:]), nil
	default:
		value, _ := ec.Variable(parts[0])
		return walkPath(value, parts[1:]), nil
	}
}

func walkPath(value interface{}, path []string) interface{} {
	for _, segment := range path {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value = m[segment]
	}
	return value
}

func compare(left, right interface{}, op string) (bool, error) {
	leftNum, leftIsNum := asNumber(left)
	rightNum, rightIsNum := asNumber(right)

	if leftIsNum && rightIsNum {
		switch op {
		case "==":
			return leftNum == rightNum, nil
		case "!=":
			return leftNum != rightNum, nil
		case ">":
			return leftNum > rightNum, nil
		case ">=":
			return leftNum >= rightNum, nil
		case "<":
			return leftNum < rightNum, nil
		case "<=":
			return leftNum <= rightNum, nil
		}
	}

	switch op {
	case "==":
		return fmt.Sprint(left) == fmt.Sprint(right), nil
	case "!=":
		return fmt.Sprint(left) != fmt.Sprint(right), nil
	case ">", ">=", "<", "<=":
		leftStr, leftOK := left.(string)
		rightStr, rightOK := right.(string)
		if !leftOK || !rightOK {
			return false, fmt.Errorf("cannot order %T against %T", left, right)
		}
		switch op {
		case ">":
			return leftStr > rightStr, nil
		case ">=":
			return leftStr >= rightStr, nil
		case "<":
			return leftStr < rightStr, nil
		default:
			return leftStr <= rightStr, nil
		}
	}

	return false, fmt.Errorf("unsupported operator %q", op)
}

func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func truthy(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "false"
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case map[string]interface{}:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	default:
		return true
	}
}
