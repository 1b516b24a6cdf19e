// Package condition evaluates boolean conditions against a workflow
// execution context. Three condition shapes are supported, recursively
// composable: SIMPLE (field + operator + literal), COMPOUND (AND/OR/NOT
// over sub-conditions), and EXPRESSION (a narrow, safe comparison grammar
// parsed by recursive descent — deliberately not a scripting language).
package condition

import "errors"

// Type discriminates the condition shapes.
type Type string

const (
	// TypeSimple compares a single field against a literal value.
	TypeSimple Type = "simple"
	// TypeCompound combines sub-conditions with AND/OR/NOT logic.
	TypeCompound Type = "compound"
	// TypeExpression evaluates a restricted boolean expression string.
	TypeExpression Type = "expression"
)

// Operator is the comparison operator for SIMPLE conditions.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpMatches    Operator = "matches"
	OpIsNull     Operator = "is_null"
	OpIsNotNull  Operator = "is_not_null"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"
	OpBetween    Operator = "between"
	OpOlderThan  Operator = "older_than"
	OpNewerThan  Operator = "newer_than"
)

// Logic combines sub-conditions in COMPOUND conditions.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
	LogicNot Logic = "not"
)

// Condition is a boolean predicate over an execution context.
// Exactly one shape is populated, selected by Type.
type Condition struct {
	Type Type `json:"type"`

	// SIMPLE fields.
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	// COMPOUND fields.
	Logic      Logic       `json:"logic,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`

	// EXPRESSION fields.
	Expression string `json:"expression,omitempty"`
}

// Resolver resolves a dotted field path against an execution context.
// The second return reports whether the path resolved to a present value.
type Resolver interface {
	Resolve(path string) (any, bool)
}

// MapResolver adapts a plain map to the Resolver interface using
// dotted-path resolution with single-level array indexing.
type MapResolver map[string]any

// Resolve implements Resolver.
func (m MapResolver) Resolve(path string) (any, bool) {
	return Lookup(map[string]any(m), path)
}

// Evaluation errors. These are hard errors, never a false result.
var (
	ErrUnknownType     = errors.New("condition: unknown condition type")
	ErrUnknownOperator = errors.New("condition: unknown operator")
	ErrUnknownLogic    = errors.New("condition: unknown compound logic")
	ErrMalformedValue  = errors.New("condition: malformed operator value")
)
