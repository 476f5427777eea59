package filter

import (
	"slices"
	"strings"
)

// Eq matches attributes equal to value.
func Eq(name, value string) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return newLeaf(KindEqual, name, value), nil
}

// Ne matches when the attribute is absent or differs from value.
// It serializes as (!(name=value)).
func Ne(name, value string) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	eq := newLeaf(KindEqual, name, value)
	return &notEqual{eq: eq, text: "(!" + eq.text + ")"}, nil
}

// Approx matches ignoring case and whitespace.
func Approx(name, value string) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return newLeaf(KindApprox, name, value), nil
}

// Le matches attributes less than or equal to value.
func Le(name, value string) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return newLeaf(KindLessOrEqual, name, value), nil
}

// Ge matches attributes greater than or equal to value.
func Ge(name, value string) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return newLeaf(KindGreaterOrEqual, name, value), nil
}

// Like matches value as a substring anchored according to mode. The value is
// escaped, so wildcards only come from the mode.
func Like(name, value string, mode MatchMode) (Criterion, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	esc := Escape(value)
	var pattern string
	switch mode {
	case Anywhere:
		pattern = "*" + esc + "*"
	case Start:
		pattern = esc + "*"
	case End:
		pattern = "*" + esc
	case Exact:
		pattern = esc
	default:
		return nil, invalidArgument("unknown match mode %d", int(mode))
	}

	return &like{
		name:    name,
		pattern: pattern,
		text:    "(" + name + "=" + pattern + ")",
	}, nil
}

// Not negates c.
func Not(c Criterion) (Criterion, error) {
	if c == nil {
		return nil, invalidArgument("not requires an operand")
	}
	return &not{child: c, text: "(!" + c.Value() + ")"}, nil
}

// And matches when every operand matches. Operands keep the order given.
func And(cs ...Criterion) (Criterion, error) {
	if err := validateOperands("and", cs); err != nil {
		return nil, err
	}
	return newGroup(KindAnd, slices.Clone(cs)), nil
}

// Or matches when any operand matches. Operands keep the order given.
func Or(cs ...Criterion) (Criterion, error) {
	if err := validateOperands("or", cs); err != nil {
		return nil, err
	}
	return newGroup(KindOr, slices.Clone(cs)), nil
}

// AllEq is And over Eq(k, v) for every attribute, in insertion order.
func AllEq(attrs *Attributes) (Criterion, error) {
	cs, err := equalities("allEq", attrs)
	if err != nil {
		return nil, err
	}
	return newGroup(KindAnd, cs), nil
}

// AnyEq is Or over Eq(k, v) for every attribute, in insertion order.
func AnyEq(attrs *Attributes) (Criterion, error) {
	cs, err := equalities("anyEq", attrs)
	if err != nil {
		return nil, err
	}
	return newGroup(KindOr, cs), nil
}

// AllEqMap is AllEq over a plain map, taken in sorted key order.
func AllEqMap(m map[string]string) (Criterion, error) {
	return AllEq(AttributesFromMap(m))
}

// AnyEqMap is AnyEq over a plain map, taken in sorted key order.
func AnyEqMap(m map[string]string) (Criterion, error) {
	return AnyEq(AttributesFromMap(m))
}

// Raw embeds literal verbatim. It is not validated here; a malformed literal
// surfaces as ErrMalformed from Filter.
func Raw(literal string) Criterion {
	return &raw{literal: literal}
}

// Must panics if err is non-nil and returns c otherwise. It is meant for
// criteria built from literals.
func Must(c Criterion, err error) Criterion {
	if err != nil {
		panic(err)
	}
	return c
}

func equalities(op string, attrs *Attributes) ([]Criterion, error) {
	if attrs.Len() == 0 {
		return nil, invalidArgument("%s requires at least one attribute", op)
	}
	cs := make([]Criterion, 0, attrs.Len())
	for k, v := range attrs.All() {
		c, err := Eq(k, v)
		if err != nil {
			return nil, err
		}
		cs = append(cs, c)
	}
	return cs, nil
}

func validateOperands(op string, cs []Criterion) error {
	if len(cs) == 0 {
		return invalidArgument("%s requires at least one operand", op)
	}
	for i, c := range cs {
		if c == nil {
			return invalidArgument("%s operand %d is nil", op, i)
		}
	}
	return nil
}

// validateName rejects names that would not survive a round trip through
// the canonical grammar.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidArgument("attribute name must not be empty")
	}
	if strings.ContainsAny(name, "=~<>()") {
		return invalidArgument("attribute name %q contains a reserved character", name)
	}
	if strings.TrimSpace(name) != name {
		return invalidArgument("attribute name %q has surrounding whitespace", name)
	}
	// a leading operator character would be read back as &, | or !
	if strings.ContainsRune("&|!", rune(name[0])) {
		return invalidArgument("attribute name %q starts with an operator", name)
	}
	return nil
}
