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

package pipemsx

import "fmt"

// NumericalFailure reports that reactions in a network element could not
// be integrated over a timestep. Unless Options.FailFast is set the
// simulation continues; the element's reactions are frozen and its
// results are marked invalid from Time onward.
type NumericalFailure struct {
	Kind    ElementKind
	Element string
	Step    int
	Time    float64 // start of the failed timestep [s]
	Err     error
}

func (e *NumericalFailure) Error() string {
	return fmt.Sprintf("pipemsx: numerical failure in %s %s at step %d (t=%gs): %v",
		e.Kind, e.Element, e.Step, e.Time, e.Err)
}

func (e *NumericalFailure) Unwrap() error { return e.Err }

// ConservationViolation reports that volume or mass was not conserved
// by transport or mixing. It indicates an internal defect and always
// stops the simulation.
type ConservationViolation struct {
	Kind     ElementKind
	Element  string
	Step     int
	Time     float64
	Quantity string // e.g. "volume" or the name of a species
	Expected float64
	Actual   float64
}

func (e *ConservationViolation) Error() string {
	return fmt.Sprintf("pipemsx: %s not conserved in %s %s at step %d (t=%gs): expected %g, got %g (difference %g)",
		e.Quantity, e.Kind, e.Element, e.Step, e.Time, e.Expected, e.Actual, e.Actual-e.Expected)
}
