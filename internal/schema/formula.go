package schema

import (
	"strings"
	"unicode"
)

// Formula is a validated-but-unevaluated expression attribute.
//
// The pipeline never computes the result: the raw text is registered with the
// IoT-Agent, which evaluates it against live measurement payloads at
// ingestion time. Placeholders are extracted only for validation and
// documentation.
type Formula struct {
	// Raw is the full cell text, including the "${...}" wrapper.
	Raw string

	// Placeholders are the "@name" references inside the body, in order of
	// first appearance, without the leading "@".
	Placeholders []string
}

// IsFormula reports whether a cell value uses the formula syntax.
func IsFormula(value string) bool {
	return strings.Contains(value, "${")
}

// ParseFormula validates a "${...}" cell and extracts its placeholders.
//
// Validation is purely syntactic: balanced braces and parentheses, and a
// well-formed arithmetic body (numbers, @placeholders, identifiers and the
// operators + - * / %). Division by zero or unresolvable placeholders are
// runtime conditions of the downstream evaluator, not detectable here.
//
// Parameters:
//   - attribute: attribute name, used in error reporting
//   - raw: the raw cell text
//
// Returns:
//   - *Formula: the validated formula
//   - error: *FormulaError naming the attribute and raw text
func ParseFormula(attribute, raw string) (*Formula, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "${") {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: ErrMalformedExpression}
	}
	if !strings.HasSuffix(trimmed, "}") {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: ErrUnterminatedFormula}
	}

	body := strings.TrimSpace(trimmed[2 : len(trimmed)-1])
	if body == "" {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: ErrEmptyFormula}
	}

	tokens, err := tokenizeFormula(body)
	if err != nil {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: err}
	}

	p := &formulaParser{tokens: tokens}
	if err := p.expression(); err != nil {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: err}
	}
	if !p.done() {
		return nil, &FormulaError{Attribute: attribute, Raw: raw, Err: ErrMalformedExpression}
	}

	return &Formula{Raw: trimmed, Placeholders: placeholders(tokens)}, nil
}

// formula token kinds.
type tokenKind int

const (
	tokNumber tokenKind = iota
	tokPlaceholder
	tokIdent
	tokOperator
	tokLParen
	tokRParen
)

type formulaToken struct {
	kind tokenKind
	text string
}

// tokenizeFormula splits a formula body into tokens.
func tokenizeFormula(body string) ([]formulaToken, error) {
	var tokens []formulaToken
	runes := []rune(body)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, formulaToken{kind: tokLParen, text: "("})
			i++
		case r == ')':
			tokens = append(tokens, formulaToken{kind: tokRParen, text: ")"})
			i++
		case strings.ContainsRune("+-*/%", r):
			tokens = append(tokens, formulaToken{kind: tokOperator, text: string(r)})
			i++
		case r == '@':
			start := i + 1
			end := start
			for end < len(runes) && isIdentRune(runes[end]) {
				end++
			}
			if end == start {
				return nil, ErrMalformedExpression
			}
			tokens = append(tokens, formulaToken{kind: tokPlaceholder, text: string(runes[start:end])})
			i = end
		case unicode.IsDigit(r) || r == '.':
			end := i
			for end < len(runes) && (unicode.IsDigit(runes[end]) || runes[end] == '.') {
				end++
			}
			tokens = append(tokens, formulaToken{kind: tokNumber, text: string(runes[i:end])})
			i = end
		case isIdentRune(r):
			end := i
			for end < len(runes) && isIdentRune(runes[end]) {
				end++
			}
			tokens = append(tokens, formulaToken{kind: tokIdent, text: string(runes[i:end])})
			i = end
		default:
			return nil, ErrMalformedExpression
		}
	}

	return tokens, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// formulaParser is a minimal recursive-descent checker for arithmetic
// expressions. It validates shape only; no evaluation.
type formulaParser struct {
	tokens []formulaToken
	pos    int
}

func (p *formulaParser) done() bool { return p.pos >= len(p.tokens) }

func (p *formulaParser) peek() (formulaToken, bool) {
	if p.done() {
		return formulaToken{}, false
	}
	return p.tokens[p.pos], true
}

// expression := operand (operator operand)*
func (p *formulaParser) expression() error {
	if err := p.operand(); err != nil {
		return err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOperator {
			return nil
		}
		p.pos++
		if err := p.operand(); err != nil {
			return err
		}
	}
}

// operand := ["-"] (number | placeholder | identifier | "(" expression ")")
func (p *formulaParser) operand() error {
	tok, ok := p.peek()
	if !ok {
		return ErrMalformedExpression
	}

	// Unary minus
	if tok.kind == tokOperator && tok.text == "-" {
		p.pos++
		tok, ok = p.peek()
		if !ok {
			return ErrMalformedExpression
		}
	}

	switch tok.kind {
	case tokNumber, tokPlaceholder, tokIdent:
		p.pos++
		return nil
	case tokLParen:
		p.pos++
		if err := p.expression(); err != nil {
			return err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokRParen {
			return ErrMalformedExpression
		}
		p.pos++
		return nil
	default:
		return ErrMalformedExpression
	}
}

// placeholders collects placeholder names in order of first appearance.
func placeholders(tokens []formulaToken) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.kind != tokPlaceholder {
			continue
		}
		if _, dup := seen[tok.text]; dup {
			continue
		}
		seen[tok.text] = struct{}{}
		names = append(names, tok.text)
	}
	return names
}
