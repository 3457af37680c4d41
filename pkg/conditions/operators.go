package conditions

import (
	"reflect"
	"strings"

	"github.com/dukex/stride/pkg/models"
	"github.com/spf13/cast"
)

// Compare applies op to actual and expected. A nil actual only satisfies
// equals against a nil expected value.
func Compare(op models.Operator, actual, expected any) bool {
	if actual == nil {
		return op == models.OperatorEquals && expected == nil
	}

	switch op {
	case models.OperatorEquals:
		return strictEqual(actual, expected)
	case models.OperatorNotEquals:
		return !strictEqual(actual, expected)
	case models.OperatorGreaterThan:
		a, b, ok := numbers(actual, expected)
		return ok && a > b
	case models.OperatorLessThan:
		a, b, ok := numbers(actual, expected)
		return ok && a < b
	case models.OperatorContains:
		return contains(actual, expected)
	case models.OperatorIn:
		items, ok := asSlice(expected)
		return ok && member(items, actual)
	case models.OperatorNotIn:
		items, ok := asSlice(expected)
		if !ok {
			return true
		}

		return !member(items, actual)
	default:
		return false
	}
}

// strictEqual compares without type coercion, except that numbers of
// different Go kinds compare by value ("5" never equals 5).
func strictEqual(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		x, y, ok := numbers(a, b)
		return ok && x == y
	}

	if a == nil || b == nil {
		return a == b
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}

	return a == b
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

func numbers(a, b any) (float64, float64, bool) {
	if a == nil || b == nil {
		return 0, 0, false
	}

	x, err := cast.ToFloat64E(a)
	if err != nil {
		return 0, 0, false
	}

	y, err := cast.ToFloat64E(b)
	if err != nil {
		return 0, 0, false
	}

	return x, y, true
}

func contains(actual, expected any) bool {
	if s, ok := actual.(string); ok {
		sub, ok := expected.(string)
		if !ok {
			return false
		}

		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	}

	if items, ok := asSlice(actual); ok {
		return member(items, expected)
	}

	return false
}

func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}

	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}

	return items, true
}

func member(items []any, v any) bool {
	for _, item := range items {
		if strictEqual(item, v) {
			return true
		}
	}

	return false
}
