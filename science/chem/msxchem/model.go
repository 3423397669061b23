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

// Package msxchem contains a multi-species reaction mechanism defined by
// user-supplied rate, equilibrium, and formula expressions.
package msxchem

import (
	"fmt"
	"strings"
)

// SpeciesType is the storage class of a species.
type SpeciesType int

const (
	// Bulk species are dissolved in the water and move with it.
	Bulk SpeciesType = iota
	// Wall species are attached to the pipe wall and do not move.
	Wall
)

func (t SpeciesType) String() string {
	if t == Wall {
		return "WALL"
	}
	return "BULK"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *SpeciesType) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "BULK", "":
		*t = Bulk
	case "WALL":
		*t = Wall
	default:
		return fmt.Errorf("msxchem: invalid species type %q", b)
	}
	return nil
}

// Species is a chemical species.
type Species struct {
	Name  string      `toml:"name"`
	Type  SpeciesType `toml:"type"`
	Units string      `toml:"units"`

	// ATol and RTol override the solver tolerances for this species.
	// Either both or neither must be set.
	ATol float64 `toml:"atol"`
	RTol float64 `toml:"rtol"`
}

// CoefficientKind is the scope of a coefficient.
type CoefficientKind int

const (
	// Constant coefficients have the same value everywhere.
	Constant CoefficientKind = iota
	// Parameter coefficients may have a different value in each pipe
	// and tank.
	Parameter
)

func (k CoefficientKind) String() string {
	if k == Parameter {
		return "PARAMETER"
	}
	return "CONSTANT"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *CoefficientKind) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "CONSTANT", "CONST", "":
		*k = Constant
	case "PARAMETER", "PARAM":
		*k = Parameter
	default:
		return fmt.Errorf("msxchem: invalid coefficient kind %q", b)
	}
	return nil
}

// Coefficient is a named numeric value used in expressions.
type Coefficient struct {
	Name  string          `toml:"name"`
	Kind  CoefficientKind `toml:"kind"`
	Value float64         `toml:"value"`

	// PipeValues and TankValues override Value for individual pipes and
	// tanks. They are only allowed for parameters.
	PipeValues map[string]float64 `toml:"pipes"`
	TankValues map[string]float64 `toml:"tanks"`
}

// Term is a named intermediate expression.
type Term struct {
	Name       string `toml:"name"`
	Expression string `toml:"expression"`
}

// ReactionKind is the type of a kinetic expression.
type ReactionKind int

const (
	// Rate expressions give the rate of change of a species.
	Rate ReactionKind = iota
	// Equil expressions give a residual that must be zero.
	Equil
	// Formula expressions give the value of a species directly.
	Formula
)

func (k ReactionKind) String() string {
	switch k {
	case Equil:
		return "EQUIL"
	case Formula:
		return "FORMULA"
	}
	return "RATE"
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ReactionKind) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "RATE", "":
		*k = Rate
	case "EQUIL":
		*k = Equil
	case "FORMULA":
		*k = Formula
	default:
		return fmt.Errorf("msxchem: invalid reaction kind %q", b)
	}
	return nil
}

// Reaction is a kinetic expression for one species.
type Reaction struct {
	Species    string       `toml:"species"`
	Kind       ReactionKind `toml:"kind"`
	Expression string       `toml:"expression"`
}

// Model is a multi-species kinetic model. Pipe and Tank hold the
// reactions that take place in pipes and in storage tanks.
type Model struct {
	Title        string        `toml:"title"`
	Species      []Species     `toml:"species"`
	Coefficients []Coefficient `toml:"coefficients"`
	Terms        []Term        `toml:"terms"`
	Pipe         []Reaction    `toml:"pipe"`
	Tank         []Reaction    `toml:"tank"`
	Options      Options       `toml:"options"`
}

// Options holds the settings for integrating the reactions.
type Options struct {
	// Solver is the integration method: EUL, RK3, RK5, or ROS2.
	Solver string `toml:"solver"`

	// Order, if non-zero, chooses the solver by its order of accuracy
	// (1, 2, 3, or 5) and overrides Solver.
	Order int `toml:"order"`

	// Coupling is FULL to resolve equilibrium species at every rate
	// evaluation or NONE to resolve them only after each accepted
	// substep.
	Coupling string `toml:"coupling"`

	// RateUnits is the time unit of the rate expressions: SEC, MIN, HR,
	// or DAY.
	RateUnits string `toml:"rate_units"`

	// RTol and ATol are the default relative and absolute tolerances.
	RTol float64 `toml:"rtol"`
	ATol float64 `toml:"atol"`

	// MinStep is the smallest integration substep [s].
	MinStep float64 `toml:"min_step"`

	// MaxSteps is the maximum number of substeps per timestep.
	MaxSteps int `toml:"max_steps"`

	// EquilMaxIter and EquilTol control the equilibrium root finding.
	EquilMaxIter int     `toml:"equil_max_iter"`
	EquilTol     float64 `toml:"equil_tol"`
}

// DefaultOptions returns the default reaction settings.
func DefaultOptions() Options {
	return Options{
		Solver:       "RK5",
		Coupling:     "FULL",
		RateUnits:    "SEC",
		RTol:         1e-4,
		ATol:         1e-4,
		MinStep:      1e-6,
		MaxSteps:     100000,
		EquilMaxIter: 50,
		EquilTol:     1e-9,
	}
}

// withDefaults fills unset fields of o from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Solver == "" {
		o.Solver = d.Solver
	}
	if o.Coupling == "" {
		o.Coupling = d.Coupling
	}
	if o.RateUnits == "" {
		o.RateUnits = d.RateUnits
	}
	if o.RTol <= 0 {
		o.RTol = d.RTol
	}
	if o.ATol <= 0 {
		o.ATol = d.ATol
	}
	if o.MinStep <= 0 {
		o.MinStep = d.MinStep
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = d.MaxSteps
	}
	if o.EquilMaxIter <= 0 {
		o.EquilMaxIter = d.EquilMaxIter
	}
	if o.EquilTol <= 0 {
		o.EquilTol = d.EquilTol
	}
	return o
}

// secondsPer returns the number of seconds in the given rate unit.
func secondsPer(unit string) (float64, error) {
	switch strings.ToUpper(unit) {
	case "SEC", "S", "SECOND", "SECONDS":
		return 1, nil
	case "MIN", "MINUTE", "MINUTES":
		return 60, nil
	case "HR", "HOUR", "HOURS":
		return 3600, nil
	case "DAY", "DAYS":
		return 86400, nil
	}
	return 0, fmt.Errorf("msxchem: invalid rate units %q; valid options are SEC, MIN, HR, and DAY", unit)
}
