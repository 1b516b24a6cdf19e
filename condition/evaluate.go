package condition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Evaluator evaluates conditions against a Resolver. It is stateless and
// safe for concurrent use. The zero value is not usable; create one with
// NewEvaluator.
type Evaluator struct {
	// Clock is used by older_than/newer_than. Defaults to time.Now.
	Clock func() time.Time
}

// NewEvaluator creates an Evaluator with the real clock.
func NewEvaluator() *Evaluator {
	return &Evaluator{Clock: time.Now}
}

// Evaluate evaluates a condition against the given resolver.
// Unknown condition types, unknown operators, and malformed operator
// values are hard errors, never a boolean result.
func (e *Evaluator) Evaluate(cond Condition, r Resolver) (bool, error) {
	switch cond.Type {
	case TypeSimple:
		return e.evaluateSimple(cond, r)
	case TypeCompound:
		return e.evaluateCompound(cond, r)
	case TypeExpression:
		return e.evaluateExpression(cond.Expression, r)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownType, cond.Type)
	}
}

func (e *Evaluator) evaluateCompound(cond Condition, r Resolver) (bool, error) {
	switch cond.Logic {
	case LogicAnd:
		for _, sub := range cond.Conditions {
			ok, err := e.Evaluate(sub, r)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil

	case LogicOr:
		for _, sub := range cond.Conditions {
			ok, err := e.Evaluate(sub, r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case LogicNot:
		if len(cond.Conditions) != 1 {
			return false, fmt.Errorf("%w: NOT requires exactly one sub-condition, got %d",
				ErrMalformedValue, len(cond.Conditions))
		}
		ok, err := e.Evaluate(cond.Conditions[0], r)
		if err != nil {
			return false, err
		}
		return !ok, nil

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownLogic, cond.Logic)
	}
}

//nolint:gocyclo // one arm per operator; splitting would hurt readability
func (e *Evaluator) evaluateSimple(cond Condition, r Resolver) (bool, error) {
	field, present := r.Resolve(cond.Field)

	switch cond.Operator {
	case OpEq:
		return deepEqual(field, cond.Value), nil
	case OpNe:
		return !deepEqual(field, cond.Value), nil

	case OpGt:
		return toNumber(field) > toNumber(cond.Value), nil
	case OpGte:
		return toNumber(field) >= toNumber(cond.Value), nil
	case OpLt:
		return toNumber(field) < toNumber(cond.Value), nil
	case OpLte:
		return toNumber(field) <= toNumber(cond.Value), nil

	case OpIn, OpNin:
		list, ok := toList(cond.Value)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a list value", ErrMalformedValue, cond.Operator)
		}
		member := false
		for _, item := range list {
			if deepEqual(field, item) {
				member = true
				break
			}
		}
		if cond.Operator == OpNin {
			return !member, nil
		}
		return member, nil

	case OpContains:
		switch f := field.(type) {
		case string:
			needle, _ := cond.Value.(string)
			return strings.Contains(f, needle), nil
		case []any:
			for _, item := range f {
				if deepEqual(item, cond.Value) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, nil
		}

	case OpStartsWith:
		f, _ := field.(string)
		prefix, _ := cond.Value.(string)
		return strings.HasPrefix(f, prefix), nil

	case OpEndsWith:
		f, _ := field.(string)
		suffix, _ := cond.Value.(string)
		return strings.HasSuffix(f, suffix), nil

	case OpMatches:
		pattern, _ := cond.Value.(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w: invalid pattern %q: %v", ErrMalformedValue, pattern, err)
		}
		f, _ := field.(string)
		return re.MatchString(f), nil

	case OpIsNull:
		return !present || field == nil, nil
	case OpIsNotNull:
		return present && field != nil, nil

	case OpIsEmpty:
		return isEmpty(field), nil
	case OpIsNotEmpty:
		return !isEmpty(field), nil

	case OpBetween:
		bounds, ok := toList(cond.Value)
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("%w: between requires a two-element [min, max] list", ErrMalformedValue)
		}
		n := toNumber(field)
		return n >= toNumber(bounds[0]) && n <= toNumber(bounds[1]), nil

	case OpOlderThan, OpNewerThan:
		lit, _ := cond.Value.(string)
		d, err := ParseDurationLiteral(lit)
		if err != nil {
			return false, err
		}
		ft, ok := toTime(field)
		if !ok {
			return false, nil
		}
		cutoff := e.now().Add(-d)
		if cond.Operator == OpOlderThan {
			return ft.Before(cutoff), nil
		}
		return ft.After(cutoff), nil

	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, cond.Operator)
	}
}

func (e *Evaluator) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// ── Value coercion ──────────────────────────────────

// deepEqual compares JSON-shaped values: arrays element-wise
// (order-sensitive), maps key-by-key, numbers across int/float kinds.
func deepEqual(a, b any) bool {
	// Numeric comparison across int/float representations.
	na, aNum := asNumber(a)
	nb, bNum := asNumber(b)
	if aNum && bNum {
		return na == nb
	}

	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true

	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true

	default:
		return a == b
	}
}

// asNumber reports whether v is a numeric kind, returning its float64 value.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toNumber coerces a value for ordered comparison: numbers pass through,
// times convert to epoch millis, strings parse as floats defaulting to 0.
func toNumber(v any) float64 {
	if n, ok := asNumber(v); ok {
		return n
	}
	switch t := v.(type) {
	case time.Time:
		return float64(t.UnixMilli())
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return n
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// toTime coerces a value to a timestamp: time.Time passes through,
// strings parse as RFC 3339, numbers are epoch milliseconds.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		if n, ok := asNumber(v); ok {
			return time.UnixMilli(int64(n)), true
		}
		return time.Time{}, false
	}
}

func toList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func isEmpty(v any) bool {
	switch f := v.(type) {
	case nil:
		return true
	case string:
		return len(f) == 0
	case []any:
		return len(f) == 0
	case map[string]any:
		return len(f) == 0
	default:
		return false
	}
}

// ── Duration literals ───────────────────────────────

var durationLiteral = regexp.MustCompile(`^(\d+)([smhdwMy])$`)

// ParseDurationLiteral parses a compact duration literal like "3d", "2h",
// or "30m". The unit is a single letter from {s, m, h, d, w, M, y}.
func ParseDurationLiteral(s string) (time.Duration, error) {
	m := durationLiteral.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: invalid duration literal %q", ErrMalformedValue, s)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid duration literal %q", ErrMalformedValue, s)
	}

	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "M":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 365 * 24 * time.Hour
	}

	return time.Duration(n) * unit, nil
}
