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
	"math"
	"sort"
	"strings"

	"github.com/Knetic/govaluate"
)

// mathFuncs are the single-argument functions available in
// kinetic expressions.
var mathFuncs = map[string]func(float64) float64{
	"abs":  math.Abs,
	"sgn":  sgn,
	"sqrt": math.Sqrt,
	"step": step,
	"log":  math.Log,
	"exp":  math.Exp,
	"sin":  math.Sin,
	"cos":  math.Cos,
	"tan":  math.Tan,
	"cot":  func(x float64) float64 { return 1 / math.Tan(x) },
	"asin": math.Asin,
	"acos": math.Acos,
	"atan": math.Atan,
	"acot": func(x float64) float64 { return math.Pi/2 - math.Atan(x) },
	"sinh": math.Sinh,
	"cosh": math.Cosh,
	"tanh": math.Tanh,
	"coth": func(x float64) float64 { return 1 / math.Tanh(x) },

	"log10": math.Log10,
}

func sgn(x float64) float64 {
	switch {
	case x < 0:
		return -1
	case x > 0:
		return 1
	}
	return 0
}

// step is the Heaviside function, 0 at and below zero.
func step(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1
}

// functions holds the govaluate bindings of mathFuncs. Each function
// is registered in lower, upper, and capitalized case.
var functions map[string]govaluate.ExpressionFunction

func init() {
	functions = make(map[string]govaluate.ExpressionFunction)
	for name, f := range mathFuncs {
		fn := wrap(name, f)
		functions[name] = fn
		functions[strings.ToUpper(name)] = fn
		functions[strings.ToUpper(name[:1])+name[1:]] = fn
	}
}

func wrap(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expr: function %s takes 1 argument but got %d", name, len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("expr: function %s: invalid argument %v", name, args[0])
		}
		return f(x), nil
	}
}

// IsFunction returns whether name is the name of a built-in function,
// in any of its accepted spellings.
func IsFunction(name string) bool {
	_, ok := functions[name]
	return ok
}

// Functions returns the lower-case names of the built-in functions.
func Functions() []string {
	o := make([]string, 0, len(mathFuncs))
	for name := range mathFuncs {
		o = append(o, name)
	}
	sort.Strings(o)
	return o
}
