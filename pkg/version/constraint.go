package version

import (
	"fmt"
	"strings"
)

// ConstraintKind discriminates the supported constraint forms.
type ConstraintKind string

const (
	// ConstraintExact pins a single version, e.g. "1.2.0".
	ConstraintExact ConstraintKind = "exact"
	// ConstraintLatestCompatible selects the highest version within the lowest
	// registered major that satisfies the optional baseline.
	ConstraintLatestCompatible ConstraintKind = "latest-compatible"
	// ConstraintRange selects from a comparator range, e.g. ">=1.2.0 <2.0.0".
	ConstraintRange ConstraintKind = "range"
)

type comparator struct {
	op      string
	version Version
}

// Constraint is a parsed version constraint expression.
type Constraint struct {
	Kind ConstraintKind
	// Exact is the pinned version for ConstraintExact.
	Exact Version
	// Baseline is the optional lower baseline for ConstraintLatestCompatible,
	// written "latest-compatible:1.2.0". Zero when absent.
	Baseline Version

	comparators []comparator
	raw         string
}

// ParseConstraint parses a constraint expression. An empty expression is
// treated as "latest-compatible".
func ParseConstraint(expr string) (Constraint, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == string(ConstraintLatestCompatible) {
		return Constraint{Kind: ConstraintLatestCompatible, raw: expr}, nil
	}

	if rest, ok := strings.CutPrefix(expr, string(ConstraintLatestCompatible)+":"); ok {
		baseline, err := Parse(rest)
		if err != nil {
			return Constraint{}, fmt.Errorf("invalid latest-compatible baseline: %w", err)
		}
		return Constraint{Kind: ConstraintLatestCompatible, Baseline: baseline, raw: expr}, nil
	}

	if strings.ContainsAny(expr, "<>=") {
		c := Constraint{Kind: ConstraintRange, raw: expr}
		for _, field := range strings.Fields(expr) {
			op := ""
			for _, candidate := range []string{">=", "<=", ">", "<", "="} {
				if strings.HasPrefix(field, candidate) {
					op = candidate
					break
				}
			}
			if op == "" {
				return Constraint{}, fmt.Errorf("invalid range comparator '%s'", field)
			}
			v, err := Parse(strings.TrimPrefix(field, op))
			if err != nil {
				return Constraint{}, fmt.Errorf("invalid range comparator '%s': %w", field, err)
			}
			c.comparators = append(c.comparators, comparator{op: op, version: v})
		}
		if len(c.comparators) == 0 {
			return Constraint{}, fmt.Errorf("empty range constraint '%s'", expr)
		}
		return c, nil
	}

	exact, err := Parse(expr)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid constraint '%s': %w", expr, err)
	}
	return Constraint{Kind: ConstraintExact, Exact: exact, raw: expr}, nil
}

// String returns the original constraint expression.
func (c Constraint) String() string {
	if c.raw == "" {
		return string(ConstraintLatestCompatible)
	}
	return c.raw
}

// Matches reports whether a single version satisfies the constraint,
// ignoring the registry-relative semantics of latest-compatible.
func (c Constraint) Matches(v Version) bool {
	switch c.Kind {
	case ConstraintExact:
		return v.Compare(c.Exact) == 0
	case ConstraintLatestCompatible:
		if c.Baseline.IsZero() {
			return true
		}
		return v.Compare(c.Baseline) >= 0
	case ConstraintRange:
		for _, cmp := range c.comparators {
			d := v.Compare(cmp.version)
			switch cmp.op {
			case ">=":
				if d < 0 {
					return false
				}
			case ">":
				if d <= 0 {
					return false
				}
			case "<=":
				if d > 0 {
					return false
				}
			case "<":
				if d >= 0 {
					return false
				}
			case "=":
				if d != 0 {
					return false
				}
			}
		}
		return true
	}
	return false
}
