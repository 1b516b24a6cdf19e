package condition_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/flowline/condition"
)

func testContext() condition.MapResolver {
	return condition.MapResolver{
		"count":  float64(10),
		"name":   "deploy-prod",
		"tags":   []any{"urgent", "billing"},
		"nested": map[string]any{"status": "active", "score": float64(7)},
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
		"created_at": "2026-01-01T00:00:00Z",
		"empty":      "",
		"none":       nil,
	}
}

func simple(field string, op condition.Operator, value any) condition.Condition {
	return condition.Condition{
		Type:     condition.TypeSimple,
		Field:    field,
		Operator: op,
		Value:    value,
	}
}

func TestEvaluate_SimpleOperators(t *testing.T) {
	e := condition.NewEvaluator()
	ctx := testContext()

	tests := []struct {
		name string
		cond condition.Condition
		want bool
	}{
		{"eq number", simple("count", condition.OpEq, float64(10)), true},
		{"eq int literal against float field", simple("count", condition.OpEq, 10), true},
		{"ne", simple("count", condition.OpNe, float64(3)), true},
		{"gt", simple("count", condition.OpGt, float64(5)), true},
		{"gte boundary", simple("count", condition.OpGte, float64(10)), true},
		{"lt false", simple("count", condition.OpLt, float64(10)), false},
		{"lte boundary", simple("count", condition.OpLte, float64(10)), true},
		{"numeric coercion from string", simple("name", condition.OpLt, float64(1)), true},
		{"in", simple("name", condition.OpIn, []any{"deploy-prod", "deploy-staging"}), true},
		{"nin", simple("name", condition.OpNin, []any{"other"}), true},
		{"contains substring", simple("name", condition.OpContains, "prod"), true},
		{"contains array element", simple("tags", condition.OpContains, "urgent"), true},
		{"starts_with", simple("name", condition.OpStartsWith, "deploy"), true},
		{"ends_with", simple("name", condition.OpEndsWith, "prod"), true},
		{"matches", simple("name", condition.OpMatches, `^deploy-\w+$`), true},
		{"is_null absent path", simple("missing.deep", condition.OpIsNull, nil), true},
		{"is_null explicit nil", simple("none", condition.OpIsNull, nil), true},
		{"is_not_null", simple("count", condition.OpIsNotNull, nil), true},
		{"is_empty string", simple("empty", condition.OpIsEmpty, nil), true},
		{"is_not_empty array", simple("tags", condition.OpIsNotEmpty, nil), true},
		{"dotted path", simple("nested.status", condition.OpEq, "active"), true},
		{"array index path", simple("items[1].name", condition.OpEq, "second"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.cond, ctx)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_BetweenInclusive(t *testing.T) {
	e := condition.NewEvaluator()

	tests := []struct {
		count float64
		want  bool
	}{
		{5, true},
		{10, true},
		{15, true},
		{4, false},
		{16, false},
	}

	for _, tt := range tests {
		ctx := condition.MapResolver{"count": tt.count}
		got, err := e.Evaluate(simple("count", condition.OpBetween, []any{float64(5), float64(15)}), ctx)
		if err != nil {
			t.Fatalf("Evaluate(between, count=%v) error: %v", tt.count, err)
		}
		if got != tt.want {
			t.Errorf("between [5,15] with count=%v = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestEvaluate_BetweenMalformedIsError(t *testing.T) {
	e := condition.NewEvaluator()
	ctx := condition.MapResolver{"count": float64(10)}

	// Single-element bound list must be a hard error, never a boolean.
	_, err := e.Evaluate(simple("count", condition.OpBetween, []any{float64(5)}), ctx)
	if !errors.Is(err, condition.ErrMalformedValue) {
		t.Fatalf("Evaluate(between, 1 bound) error = %v, want ErrMalformedValue", err)
	}

	_, err = e.Evaluate(simple("count", condition.OpBetween, "5,15"), ctx)
	if !errors.Is(err, condition.ErrMalformedValue) {
		t.Fatalf("Evaluate(between, non-list) error = %v, want ErrMalformedValue", err)
	}
}

func TestEvaluate_UnknownOperatorIsError(t *testing.T) {
	e := condition.NewEvaluator()

	_, err := e.Evaluate(simple("count", "almost_equal", float64(10)), testContext())
	if !errors.Is(err, condition.ErrUnknownOperator) {
		t.Fatalf("Evaluate(unknown op) error = %v, want ErrUnknownOperator", err)
	}

	_, err = e.Evaluate(condition.Condition{Type: "mystery"}, testContext())
	if !errors.Is(err, condition.ErrUnknownType) {
		t.Fatalf("Evaluate(unknown type) error = %v, want ErrUnknownType", err)
	}
}

func TestEvaluate_OlderThanNewerThan(t *testing.T) {
	e := condition.NewEvaluator()
	e.Clock = func() time.Time {
		return time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	}
	ctx := testContext() // created_at = 2026-01-01

	older, err := e.Evaluate(simple("created_at", condition.OpOlderThan, "3d"), ctx)
	if err != nil {
		t.Fatalf("Evaluate(older_than) error: %v", err)
	}
	if !older {
		t.Error("created_at 9 days ago should be older_than 3d")
	}

	newer, err := e.Evaluate(simple("created_at", condition.OpNewerThan, "2w"), ctx)
	if err != nil {
		t.Fatalf("Evaluate(newer_than) error: %v", err)
	}
	if !newer {
		t.Error("created_at 9 days ago should be newer_than 2w")
	}

	_, err = e.Evaluate(simple("created_at", condition.OpOlderThan, "3 days"), ctx)
	if !errors.Is(err, condition.ErrMalformedValue) {
		t.Errorf("Evaluate(bad duration literal) error = %v, want ErrMalformedValue", err)
	}
}

func TestEvaluate_DeepEquality(t *testing.T) {
	e := condition.NewEvaluator()
	ctx := condition.MapResolver{
		"list": []any{float64(1), float64(2)},
		"obj":  map[string]any{"a": float64(1), "b": []any{"x"}},
	}

	tests := []struct {
		name  string
		field string
		value any
		want  bool
	}{
		{"equal lists", "list", []any{float64(1), float64(2)}, true},
		{"order matters", "list", []any{float64(2), float64(1)}, false},
		{"equal maps", "obj", map[string]any{"a": float64(1), "b": []any{"x"}}, true},
		{"missing key", "obj", map[string]any{"a": float64(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(simple(tt.field, condition.OpEq, tt.value), ctx)
			if err != nil {
				t.Fatalf("Evaluate() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("eq = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Compound(t *testing.T) {
	e := condition.NewEvaluator()
	ctx := testContext()

	and := condition.Condition{
		Type:  condition.TypeCompound,
		Logic: condition.LogicAnd,
		Conditions: []condition.Condition{
			simple("count", condition.OpGt, float64(5)),
			simple("name", condition.OpStartsWith, "deploy"),
		},
	}
	if got, err := e.Evaluate(and, ctx); err != nil || !got {
		t.Errorf("AND = (%v, %v), want (true, nil)", got, err)
	}

	or := condition.Condition{
		Type:  condition.TypeCompound,
		Logic: condition.LogicOr,
		Conditions: []condition.Condition{
			simple("count", condition.OpGt, float64(100)),
			simple("name", condition.OpEq, "deploy-prod"),
		},
	}
	if got, err := e.Evaluate(or, ctx); err != nil || !got {
		t.Errorf("OR = (%v, %v), want (true, nil)", got, err)
	}

	not := condition.Condition{
		Type:       condition.TypeCompound,
		Logic:      condition.LogicNot,
		Conditions: []condition.Condition{simple("count", condition.OpGt, float64(100))},
	}
	if got, err := e.Evaluate(not, ctx); err != nil || !got {
		t.Errorf("NOT = (%v, %v), want (true, nil)", got, err)
	}

	// NOT with two children is malformed.
	not.Conditions = append(not.Conditions, simple("count", condition.OpGt, float64(1)))
	if _, err := e.Evaluate(not, ctx); !errors.Is(err, condition.ErrMalformedValue) {
		t.Errorf("NOT with 2 children error = %v, want ErrMalformedValue", err)
	}
}

func TestParseDurationLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"3d", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1M", 30 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := condition.ParseDurationLiteral(tt.in)
		if err != nil {
			t.Errorf("ParseDurationLiteral(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDurationLiteral(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "3", "d3", "3 d", "3ms"} {
		if _, err := condition.ParseDurationLiteral(bad); err == nil {
			t.Errorf("ParseDurationLiteral(%q) should fail", bad)
		}
	}
}
