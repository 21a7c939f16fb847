package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Parse reads a penetrance expression from its text form. The accepted
// grammar is the operator set penetrance models are written in:
//
//	expr   := term { ("+"|"-") term }
//	term   := factor { "*" factor }
//	factor := ["-"|"+"] power
//	power  := atom [ ("^"|"**") ["-"] integer ]
//	atom   := number | parameter | "(" expr ")"
//
// Parameters are alphabetic identifiers; numbers are decimal literals.
// Whitespace is ignored.
func Parse(input string) (*Expr, error) {
	p := &parser{input: input}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos < len(p.input) {
		return nil, fmt.Errorf("unexpected %q at offset %d in %q", p.input[p.pos], p.pos, p.input)
	}

	return e, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) parseExpr() (*Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = Add(left, right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			left = Sub(left, right)
		default:
			return left, nil
		}
	}
}

func (p *parser) parseTerm() (*Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.peek() == '*' {
		// "**" belongs to the power rule, not multiplication.
		if p.pos+1 < len(p.input) && p.input[p.pos+1] == '*' {
			return nil, fmt.Errorf("misplaced power operator at offset %d in %q", p.pos, p.input)
		}
		p.pos++
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = Mul(left, right)
	}

	return left, nil
}

func (p *parser) parseFactor() (*Expr, error) {
	switch p.peek() {
	case '-':
		p.pos++
		e, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return Neg(e), nil
	case '+':
		p.pos++
	}

	return p.parsePower()
}

func (p *parser) parsePower() (*Expr, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}

	c := p.peek()
	if c != '^' && !(c == '*' && p.pos+1 < len(p.input) && p.input[p.pos+1] == '*') {
		return base, nil
	}
	if c == '^' {
		p.pos++
	} else {
		p.pos += 2
	}

	p.skipSpace()
	negative := false
	if p.pos < len(p.input) && p.input[p.pos] == '-' {
		negative = true
		p.pos++
	}

	start := p.pos
	for p.pos < len(p.input) && unicode.IsDigit(rune(p.input[p.pos])) {
		p.pos++
	}
	if start == p.pos {
		return nil, fmt.Errorf("expected integer exponent at offset %d in %q", start, p.input)
	}

	exp, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return nil, fmt.Errorf("bad exponent in %q: %w", p.input, err)
	}
	if negative {
		exp = -exp
	}

	return Pow(base, exp), nil
}

func (p *parser) parseAtom() (*Expr, error) {
	c := p.peek()

	switch {
	case c == '(':
		p.pos++
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, fmt.Errorf("missing closing parenthesis in %q", p.input)
		}
		p.pos++
		return e, nil

	case unicode.IsDigit(rune(c)) || c == '.':
		start := p.pos
		for p.pos < len(p.input) && strings.ContainsRune("0123456789.", rune(p.input[p.pos])) {
			p.pos++
		}
		// Optional exponent suffix on the literal itself (e.g. 1e-3).
		if p.pos < len(p.input) && (p.input[p.pos] == 'e' || p.input[p.pos] == 'E') {
			mark := p.pos
			p.pos++
			if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
				p.pos++
			}
			digits := p.pos
			for p.pos < len(p.input) && unicode.IsDigit(rune(p.input[p.pos])) {
				p.pos++
			}
			if p.pos == digits {
				// Not an exponent suffix after all; treat 'e' as a parameter.
				p.pos = mark
			}
		}
		v, err := decimal.NewFromString(p.input[start:p.pos])
		if err != nil {
			return nil, fmt.Errorf("bad numeric literal %q in %q", p.input[start:p.pos], p.input)
		}
		return Const(v), nil

	case unicode.IsLetter(rune(c)):
		start := p.pos
		for p.pos < len(p.input) && unicode.IsLetter(rune(p.input[p.pos])) {
			p.pos++
		}
		return Var(p.input[start:p.pos]), nil

	case c == 0:
		return nil, fmt.Errorf("unexpected end of expression in %q", p.input)
	}

	return nil, fmt.Errorf("unexpected %q at offset %d in %q", c, p.pos, p.input)
}
