package filter

import (
	"strings"

	"github.com/szhem/osgi-utils/internal/log"
)

// Filter is a compiled predicate over attribute maps. It is immutable and
// safe for concurrent use.
type Filter struct {
	root Node
	text string
}

// Parse compiles a canonical filter string.
func Parse(s string) (*Filter, error) {
	root, err := NewParser(s).Parse()
	if err != nil {
		log.Debug(log.CatFilter, "Parse failed", "filter", s, "error", err)
		return nil, err
	}
	return newFilter(root), nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func newFilter(root Node) *Filter {
	var b strings.Builder
	root.render(&b)
	return &Filter{root: root, text: b.String()}
}

// Match reports whether props satisfy the filter. Attribute names are matched
// case-insensitively when no exact key exists.
func (f *Filter) Match(props map[string]any) bool {
	return matchNode(f.root, props)
}

// MatchStrings is Match for string-only attribute maps.
func (f *Filter) MatchStrings(props map[string]string) bool {
	m := make(map[string]any, len(props))
	for k, v := range props {
		m[k] = v
	}
	return matchNode(f.root, m)
}

// Root returns the compiled node tree.
func (f *Filter) Root() Node {
	return f.root
}

// String returns the normalized canonical form.
func (f *Filter) String() string {
	return f.text
}
