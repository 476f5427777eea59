package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// lookup finds an attribute by exact name first, then case-insensitively.
func lookup(props map[string]any, name string) (any, bool) {
	if v, ok := props[name]; ok {
		return v, v != nil
	}
	for k, v := range props {
		if strings.EqualFold(k, name) {
			return v, v != nil
		}
	}
	return nil, false
}

func matchNode(n Node, props map[string]any) bool {
	switch n := n.(type) {
	case *AndNode:
		for _, c := range n.Children {
			if !matchNode(c, props) {
				return false
			}
		}
		return true
	case *OrNode:
		for _, c := range n.Children {
			if matchNode(c, props) {
				return true
			}
		}
		return false
	case *NotNode:
		return !matchNode(n.Child, props)
	case *PresentNode:
		_, ok := lookup(props, n.Attr)
		return ok
	case *CompareNode:
		v, ok := lookup(props, n.Attr)
		return ok && compareAny(v, n.Op, n.Value)
	case *SubstringNode:
		v, ok := lookup(props, n.Attr)
		return ok && substringAny(v, n)
	default:
		return false
	}
}

// compareAny applies a comparison to a typed attribute value. Multi-valued
// attributes match when any element does.
func compareAny(v any, op Op, operand string) bool {
	switch v := v.(type) {
	case string:
		return compareString(v, op, operand)
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(operand))
		if err != nil || (op != OpEqual && op != OpApprox) {
			return false
		}
		return v == b
	case fmt.Stringer:
		return compareString(v.String(), op, operand)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(operand), 10, 64)
		return err == nil && compareOrdered(rv.Int(), op, n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(strings.TrimSpace(operand), 10, 64)
		return err == nil && compareOrdered(rv.Uint(), op, n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(operand), 64)
		return err == nil && compareOrdered(rv.Float(), op, f)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if compareAny(rv.Index(i).Interface(), op, operand) {
				return true
			}
		}
		return false
	case reflect.String:
		return compareString(rv.String(), op, operand)
	default:
		return compareString(fmt.Sprint(v), op, operand)
	}
}

func compareOrdered[T int64 | uint64 | float64](v T, op Op, operand T) bool {
	switch op {
	case OpLessOrEqual:
		return v <= operand
	case OpGreaterOrEqual:
		return v >= operand
	default:
		return v == operand
	}
}

func compareString(v string, op Op, operand string) bool {
	switch op {
	case OpApprox:
		return approxEqual(v, operand)
	case OpLessOrEqual:
		return strings.Compare(v, operand) <= 0
	case OpGreaterOrEqual:
		return strings.Compare(v, operand) >= 0
	default:
		return v == operand
	}
}

// approxEqual compares ignoring case and all whitespace.
func approxEqual(a, b string) bool {
	return strings.EqualFold(stripSpace(a), stripSpace(b))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// substringAny matches string-like values against a wildcard pattern.
func substringAny(v any, n *SubstringNode) bool {
	switch v := v.(type) {
	case string:
		return matchSubstring(v, n)
	case fmt.Stringer:
		return matchSubstring(v.String(), n)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return matchSubstring(rv.String(), n)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if substringAny(rv.Index(i).Interface(), n) {
				return true
			}
		}
	}
	return false
}

// matchSubstring anchors Initial at the start and Final at the end, and finds
// each Any segment left to right in between.
func matchSubstring(s string, n *SubstringNode) bool {
	if !strings.HasPrefix(s, n.Initial) {
		return false
	}
	rest := s[len(n.Initial):]
	for _, seg := range n.Any {
		i := strings.Index(rest, seg)
		if i < 0 {
			return false
		}
		rest = rest[i+len(seg):]
	}
	return len(rest) >= len(n.Final) && strings.HasSuffix(rest, n.Final)
}
