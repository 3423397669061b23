/*
Copyright © 2018 the PipeMSX authors.
This file is part of PipeMSX.

PipeMSX is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

PipeMSX is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with PipeMSX.  If not, see <http://www.gnu.org/licenses/>.
*/

package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
)

// prepare rewrites text into a form the govaluate lexer reads the
// way kinetic expressions are meant: operators are separated by spaces
// so that "a*-b" lexes as two operators, unary plus is dropped, and
// numbers in scientific notation, which govaluate does not accept,
// are replaced by placeholder variables whose values are returned in
// literals.
func prepare(text string) (string, map[string]float64, error) {
	prefix := "numlit"
	for strings.Contains(text, prefix) {
		prefix += "x"
	}
	literals := make(map[string]float64)

	var b strings.Builder
	r := []rune(text)
	// operand is true when the last item written was a value, so that a
	// following + or - is binary.
	operand := false
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_') {
				j++
			}
			b.WriteString(" " + string(r[i:j]) + " ")
			operand = true
			i = j
		case unicode.IsDigit(c) || c == '.':
			j := i
			for j < len(r) && (unicode.IsDigit(r[j]) || r[j] == '.') {
				j++
			}
			exponent := false
			if j < len(r) && (r[j] == 'e' || r[j] == 'E') {
				k := j + 1
				if k < len(r) && (r[k] == '+' || r[k] == '-') {
					k++
				}
				if k < len(r) && unicode.IsDigit(r[k]) {
					for k < len(r) && unicode.IsDigit(r[k]) {
						k++
					}
					j = k
					exponent = true
				}
			}
			num := string(r[i:j])
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return "", nil, fmt.Errorf("invalid number %q", num)
			}
			if exponent {
				name := fmt.Sprintf("%s%d", prefix, len(literals))
				literals[name] = v
				num = name
			}
			b.WriteString(" " + num + " ")
			operand = true
			i = j
		case c == '*' && i+1 < len(r) && r[i+1] == '*':
			b.WriteString(" ** ")
			operand = false
			i += 2
		case c == '+' && !operand:
			// Unary plus has no effect.
			i++
		case strings.ContainsRune("+-*/^,(", c):
			b.WriteString(" " + string(c) + " ")
			operand = false
			i++
		case c == ')':
			b.WriteString(" ) ")
			operand = true
			i++
		default:
			return "", nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", nil, fmt.Errorf("empty expression")
	}
	return b.String(), literals, nil
}

// Operator precedence, lowest to highest.
const (
	precAdd = iota + 1
	precMul
	precUnary
	precPow
)

// parser builds an expression tree from govaluate tokens by
// precedence climbing.
type parser struct {
	tokens   []govaluate.ExpressionToken
	pos      int
	literals map[string]float64
}

func (p *parser) parse() (*node, error) {
	n, err := p.expression(precAdd)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %s token %v", p.tokens[p.pos].Kind, p.tokens[p.pos].Value)
	}
	return n, nil
}

func (p *parser) peek() (govaluate.ExpressionToken, bool) {
	if p.pos >= len(p.tokens) {
		return govaluate.ExpressionToken{}, false
	}
	return p.tokens[p.pos], true
}

// binaryOp returns the operator, precedence and associativity of the
// next token if it is a binary operator.
func (p *parser) binaryOp() (op byte, prec int, rightAssoc bool, ok bool, err error) {
	t, more := p.peek()
	if !more || t.Kind != govaluate.MODIFIER {
		return 0, 0, false, false, nil
	}
	switch t.Value.(string) {
	case "+":
		return '+', precAdd, false, true, nil
	case "-":
		return '-', precAdd, false, true, nil
	case "*":
		return '*', precMul, false, true, nil
	case "/":
		return '/', precMul, false, true, nil
	case "^", "**":
		return '^', precPow, true, true, nil
	}
	return 0, 0, false, false, fmt.Errorf("unsupported operator %q", t.Value)
}

func (p *parser) expression(minPrec int) (*node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, prec, rightAssoc, ok, err := p.binaryOp()
		if err != nil {
			return nil, err
		}
		if !ok || prec < minPrec {
			return left, nil
		}
		p.pos++
		next := prec + 1
		if rightAssoc {
			next = prec
		}
		right, err := p.expression(next)
		if err != nil {
			return nil, err
		}
		left = &node{kind: binary, op: op, left: left, right: right}
	}
}

func (p *parser) unary() (*node, error) {
	t, ok := p.peek()
	if ok && t.Kind == govaluate.PREFIX {
		if t.Value.(string) != "-" {
			return nil, fmt.Errorf("unsupported prefix operator %q", t.Value)
		}
		p.pos++
		operand, err := p.expression(precUnary)
		if err != nil {
			return nil, err
		}
		return &node{kind: negate, left: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (*node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch t.Kind {
	case govaluate.NUMERIC:
		return &node{kind: constant, value: t.Value.(float64)}, nil
	case govaluate.VARIABLE:
		name := t.Value.(string)
		if v, ok := p.literals[name]; ok {
			return &node{kind: constant, value: v}, nil
		}
		return &node{kind: symbol, name: name, slot: -1}, nil
	case govaluate.FUNCTION:
		fn := t.Value.(govaluate.ExpressionFunction)
		if t, ok := p.peek(); !ok || t.Kind != govaluate.CLAUSE {
			return nil, fmt.Errorf("function call missing argument list")
		}
		p.pos++
		arg, err := p.expression(precAdd)
		if err != nil {
			return nil, err
		}
		next, ok := p.peek()
		if ok && next.Kind == govaluate.SEPARATOR {
			return nil, fmt.Errorf("functions take exactly one argument")
		}
		if !ok || next.Kind != govaluate.CLAUSE_CLOSE {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return &node{kind: call, arg: arg, fn: fn}, nil
	case govaluate.CLAUSE:
		inner, err := p.expression(precAdd)
		if err != nil {
			return nil, err
		}
		if t, ok := p.peek(); !ok || t.Kind != govaluate.CLAUSE_CLOSE {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return inner, nil
	}
	return nil, fmt.Errorf("unexpected %s token %v", t.Kind, t.Value)
}
