package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInvalidAttribute = errors.New("invalid attribute")

// parseAttrs turns repeated k=v flags into an attribute map. Values that
// parse as integers, floats or booleans keep that type so ordering filters
// compare them numerically. A repeated key becomes a multi-valued attribute.
func parseAttrs(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q, want key=value", errInvalidAttribute, pair)
		}

		val := attrValue(v)
		switch prev := attrs[k].(type) {
		case nil:
			attrs[k] = val
		case []any:
			attrs[k] = append(prev, val)
		default:
			attrs[k] = []any{prev, val}
		}
	}
	return attrs, nil
}

func attrValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
