package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The EXPRESSION grammar, smallest to largest:
//
//	expr       = orExpr
//	orExpr     = andExpr { "||" andExpr }
//	andExpr    = unaryExpr { "&&" unaryExpr }
//	unaryExpr  = "!" unaryExpr | "(" expr ")" | comparison
//	comparison = operand [ ("==" | "!=" | ">" | ">=" | "<" | "<=") operand ]
//	operand    = literal | fieldPath
//
// A bare operand with no comparison operator is evaluated for truthiness.

func (e *Evaluator) evaluateExpression(expr string, r Resolver) (bool, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return false, err
	}

	p := &parser{tokens: tokens, resolver: r}
	result, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.atEnd() {
		return false, fmt.Errorf("%w: unexpected token %q in expression", ErrMalformedValue, p.peek().text)
	}
	return result, nil
}

// ── Tokenizer ───────────────────────────────────────

type tokenKind int

const (
	tokOperand tokenKind = iota // field path, number, string, true/false/null
	tokOp                       // == != > >= < <=
	tokAnd                      // &&
	tokOr                       // ||
	tokNot                      // !
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++

		case strings.HasPrefix(expr[i:], "&&"):
			tokens = append(tokens, token{tokAnd, "&&"})
			i += 2
		case strings.HasPrefix(expr[i:], "||"):
			tokens = append(tokens, token{tokOr, "||"})
			i += 2

		case strings.HasPrefix(expr[i:], "=="), strings.HasPrefix(expr[i:], "!="),
			strings.HasPrefix(expr[i:], ">="), strings.HasPrefix(expr[i:], "<="):
			tokens = append(tokens, token{tokOp, expr[i : i+2]})
			i += 2
		case c == '>' || c == '<':
			tokens = append(tokens, token{tokOp, string(c)})
			i++
		case c == '!':
			tokens = append(tokens, token{tokNot, "!"})
			i++

		case c == '\'' || c == '"':
			end := strings.IndexByte(expr[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated string in expression", ErrMalformedValue)
			}
			tokens = append(tokens, token{tokOperand, expr[i : i+end+2]})
			i += end + 2

		case isOperandChar(rune(c)):
			start := i
			for i < len(expr) && isOperandChar(rune(expr[i])) {
				i++
			}
			tokens = append(tokens, token{tokOperand, expr[start:i]})

		default:
			return nil, fmt.Errorf("%w: unexpected character %q in expression", ErrMalformedValue, string(c))
		}
	}
	return tokens, nil
}

// isOperandChar reports whether c can appear in a field path or literal:
// identifiers with dots and array indexes, numbers with decimal points.
func isOperandChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) ||
		c == '.' || c == '_' || c == '[' || c == ']' || c == '-'
}

// ── Recursive-descent parser ────────────────────────

type parser struct {
	tokens   []token
	pos      int
	resolver Resolver
}

func (p *parser) atEnd() bool    { return p.pos >= len(p.tokens) }
func (p *parser) peek() token    { return p.tokens[p.pos] }
func (p *parser) advance() token { t := p.tokens[p.pos]; p.pos++; return t }

func (p *parser) match(kind tokenKind) bool {
	if p.atEnd() || p.tokens[p.pos].kind != kind {
		return false
	}
	p.pos++
	return true
}

func (p *parser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for p.match(tokOr) {
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
	return left, nil
}

func (p *parser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for p.match(tokAnd) {
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
	return left, nil
}

func (p *parser) parseUnary() (bool, error) {
	if p.match(tokNot) {
		inner, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		return !inner, nil
	}

	if p.match(tokLParen) {
		inner, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if !p.match(tokRParen) {
			return false, fmt.Errorf("%w: missing closing parenthesis", ErrMalformedValue)
		}
		return inner, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (bool, error) {
	left, err := p.parseOperand()
	if err != nil {
		return false, err
	}

	if p.atEnd() || p.peek().kind != tokOp {
		// Bare operand: truthiness.
		return truthy(left), nil
	}

	op := p.advance().text
	right, err := p.parseOperand()
	if err != nil {
		return false, err
	}

	switch op {
	case "==":
		return deepEqual(left, right), nil
	case "!=":
		return !deepEqual(left, right), nil
	case ">":
		return toNumber(left) > toNumber(right), nil
	case ">=":
		return toNumber(left) >= toNumber(right), nil
	case "<":
		return toNumber(left) < toNumber(right), nil
	case "<=":
		return toNumber(left) <= toNumber(right), nil
	default:
		return false, fmt.Errorf("%w: unknown comparison %q", ErrMalformedValue, op)
	}
}

func (p *parser) parseOperand() (any, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("%w: expression ends where a value was expected", ErrMalformedValue)
	}
	t := p.advance()
	if t.kind != tokOperand {
		return nil, fmt.Errorf("%w: expected a value, got %q", ErrMalformedValue, t.text)
	}
	return p.resolveOperand(t.text), nil
}

// resolveOperand interprets an operand token: quoted strings and numeric
// literals stay literal, the keywords true/false/null stay literal, and
// anything else is resolved as a field path (missing paths resolve to nil).
func (p *parser) resolveOperand(text string) any {
	if len(text) >= 2 && (text[0] == '\'' || text[0] == '"') {
		return text[1 : len(text)-1]
	}
	switch text {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return n
	}

	v, ok := p.resolver.Resolve(text)
	if !ok {
		return nil
	}
	return v
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		if n, ok := asNumber(v); ok {
			return n != 0
		}
		return true
	}
}
