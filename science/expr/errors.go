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

import "fmt"

// SyntaxError reports an expression that could not be parsed.
type SyntaxError struct {
	Expression string
	Err        error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("expr: invalid expression %q: %v", e.Expression, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// UndefinedSymbolError reports an expression that references a name
// that is not a species, coefficient, term, or hydraulic variable.
type UndefinedSymbolError struct {
	Name       string
	Expression string
}

func (e *UndefinedSymbolError) Error() string {
	return fmt.Sprintf("expr: undefined symbol %q in expression %q", e.Name, e.Expression)
}
