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

// Package expr parses and evaluates the algebraic expressions used in
// kinetic models: numbers, symbols, the operators + - * / ^ (** is an
// alias for ^), unary minus, parentheses, and a fixed set of single
// argument math functions.
//
// Text is tokenized with govaluate and then built into a tree whose
// symbols are bound to positions in a flat value slice, so that
// evaluation does no map lookups.
package expr

import (
	"fmt"
	"math"
	"sort"

	"github.com/Knetic/govaluate"
)

// kind is the type of a node in an expression tree.
type kind uint8

const (
	constant kind = iota
	symbol
	negate
	binary
	call
)

// node is a tagged expression tree node.
type node struct {
	kind  kind
	value float64 // constant
	name  string  // symbol
	slot  int     // symbol, after binding
	op    byte    // binary: one of + - * / ^
	left  *node   // negate, binary
	right *node   // binary
	arg   *node   // call
	fn    govaluate.ExpressionFunction
}

// Expression is a parsed expression.
type Expression struct {
	text  string
	root  *node
	bound bool
}

// Parse parses text into an Expression.
func Parse(text string) (*Expression, error) {
	prepared, literals, err := prepare(text)
	if err != nil {
		return nil, &SyntaxError{Expression: text, Err: err}
	}
	ge, err := govaluate.NewEvaluableExpressionWithFunctions(prepared, functions)
	if err != nil {
		return nil, &SyntaxError{Expression: text, Err: err}
	}
	p := parser{tokens: ge.Tokens(), literals: literals}
	root, err := p.parse()
	if err != nil {
		return nil, &SyntaxError{Expression: text, Err: err}
	}
	return &Expression{text: text, root: root}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Expression {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the original text of the expression.
func (e *Expression) String() string { return e.text }

// Names returns the sorted, unique names of the symbols referenced by e.
func (e *Expression) Names() []string {
	set := make(map[string]struct{})
	e.root.walk(func(n *node) {
		if n.kind == symbol {
			set[n.name] = struct{}{}
		}
	})
	o := make([]string, 0, len(set))
	for name := range set {
		o = append(o, name)
	}
	sort.Strings(o)
	return o
}

// Bind resolves every symbol in e to an index into the value slice
// later passed to Eval. It returns an *UndefinedSymbolError for the first
// symbol (in order of appearance) that resolve does not know.
func (e *Expression) Bind(resolve func(name string) (int, bool)) error {
	var err error
	e.root.walk(func(n *node) {
		if err != nil || n.kind != symbol {
			return
		}
		i, ok := resolve(n.name)
		if !ok {
			err = &UndefinedSymbolError{Name: n.name, Expression: e.text}
			return
		}
		n.slot = i
	})
	if err != nil {
		return err
	}
	e.bound = true
	return nil
}

// Bound returns whether Bind has completed successfully.
func (e *Expression) Bound() bool { return e.bound }

// Eval evaluates e using vals, which is indexed by the positions
// assigned in Bind. Domain errors such as the logarithm of a negative
// number result in NaN or Inf rather than an error.
// Eval does not modify e and may be called concurrently.
func (e *Expression) Eval(vals []float64) float64 {
	return e.root.eval(vals)
}

func (n *node) eval(vals []float64) float64 {
	switch n.kind {
	case constant:
		return n.value
	case symbol:
		return vals[n.slot]
	case negate:
		return -n.left.eval(vals)
	case binary:
		l, r := n.left.eval(vals), n.right.eval(vals)
		switch n.op {
		case '+':
			return l + r
		case '-':
			return l - r
		case '*':
			return l * r
		case '/':
			return l / r
		case '^':
			return math.Pow(l, r)
		}
	case call:
		v, err := n.fn(n.arg.eval(vals))
		if err != nil {
			return math.NaN()
		}
		return v.(float64)
	}
	panic(fmt.Errorf("expr: invalid node kind %d", n.kind))
}

// walk calls f on n and all of its descendants, depth first and
// left to right.
func (n *node) walk(f func(*node)) {
	f(n)
	switch n.kind {
	case negate:
		n.left.walk(f)
	case binary:
		n.left.walk(f)
		n.right.walk(f)
	case call:
		n.arg.walk(f)
	}
}
