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

package msxchem

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/spatialmodel/pipemsx"
	"github.com/spatialmodel/pipemsx/science/expr"
	"github.com/spatialmodel/pipemsx/science/ode"
	"github.com/spatialmodel/pipemsx/science/rootfind"
)

// Errors wrapped by ModelError.
var (
	ErrInvalidName       = errors.New("invalid name")
	ErrDuplicateName     = errors.New("name is already in use")
	ErrReservedName      = errors.New("name is reserved")
	ErrUndeclared        = errors.New("species is not declared")
	ErrDuplicateReaction = errors.New("species has more than one reaction")
	ErrWallInTank        = errors.New("wall species cannot react in tanks")
	ErrNotParameter      = errors.New("only parameters can have per-element values")
	ErrTolerance         = errors.New("atol and rtol must both be set or both be unset")
	ErrCycle             = errors.New("circular reference")
	ErrFormulaFeedback   = errors.New("formula species cannot be used in rate or equilibrium expressions")
	ErrOptions           = errors.New("invalid option")
)

// ModelError reports a problem with a kinetic model definition.
type ModelError struct {
	// Object is the kind of thing the error is about, for example
	// "species" or "pipe reaction".
	Object string
	Name   string
	Err    error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("msxchem: %s %q: %v", e.Object, e.Name, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// keywords are words the expression lexer gives a meaning of its own.
var keywords = []string{"true", "false", "in"}

// Mechanism is a compiled kinetic model. It implements
// pipemsx.Mechanism.
type Mechanism struct {
	model Model
	opts  Options

	// The value slice passed to expressions holds, in order, the
	// species, the coefficients, the terms, and the hydraulic variables.
	nsp, ncoef, nterm int
	index             map[string]int

	coefValues []float64
	terms      []*expr.Expression // indexed by term number
	termOrder  []int              // evaluation order

	atol, rtol []float64 // by species

	integrator ode.Integrator
	rootCfg    rootfind.Config
	full       bool
	secPer     float64

	pipe, tank *reactions
}

// reactions are the compiled reactions at one kind of location.
type reactions struct {
	loc pipemsx.Location

	rate, equil, formula             []int // species indices
	rateExpr, equilExpr, formulaExpr []*expr.Expression

	// atol and rtol are the tolerances of the rate species.
	atol, rtol []float64

	params []parameter

	pool sync.Pool
}

// parameter is a coefficient with per-element values.
type parameter struct {
	slot   int
	values map[string]float64
}

// Compile validates model and prepares it for simulation.
func Compile(model *Model) (*Mechanism, error) {
	m := &Mechanism{
		model: *model,
		opts:  model.Options.withDefaults(),
		nsp:   len(model.Species),
		ncoef: len(model.Coefficients),
		nterm: len(model.Terms),
		index: make(map[string]int),
	}
	if err := m.setOptions(); err != nil {
		return nil, err
	}
	if err := m.declare(); err != nil {
		return nil, err
	}
	if err := m.compileTerms(); err != nil {
		return nil, err
	}
	var err error
	if m.pipe, err = m.compileReactions(pipemsx.InPipe, model.Pipe); err != nil {
		return nil, err
	}
	if m.tank, err = m.compileReactions(pipemsx.InTank, model.Tank); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Mechanism) setOptions() error {
	o := m.opts
	var err error
	if o.Order != 0 {
		m.integrator, err = ode.ForOrder(o.Order)
	} else {
		m.integrator, err = ode.New(o.Solver)
	}
	if err != nil {
		return &ModelError{Object: "option", Name: "solver", Err: fmt.Errorf("%w: %v", ErrOptions, err)}
	}
	switch strings.ToUpper(o.Coupling) {
	case "FULL":
		m.full = true
	case "NONE":
	default:
		return &ModelError{Object: "option", Name: "coupling",
			Err: fmt.Errorf("%w: %q; valid options are FULL and NONE", ErrOptions, o.Coupling)}
	}
	if m.secPer, err = secondsPer(o.RateUnits); err != nil {
		return &ModelError{Object: "option", Name: "rate_units", Err: fmt.Errorf("%w: %v", ErrOptions, err)}
	}
	m.rootCfg = rootfind.Config{MaxIter: o.EquilMaxIter, Tol: o.EquilTol}
	return nil
}

// reserved returns whether name is used by the expression language or
// by a hydraulic variable.
func reserved(name string) bool {
	for _, h := range pipemsx.HydraulicVariables {
		if name == h {
			return true
		}
	}
	lower := strings.ToLower(name)
	for _, f := range expr.Functions() {
		if lower == f {
			return true
		}
	}
	for _, k := range keywords {
		if lower == k {
			return true
		}
	}
	return false
}

// declare assigns value slots to the species, coefficients, and terms.
func (m *Mechanism) declare() error {
	add := func(object, name string, slot int) error {
		switch {
		case !validName.MatchString(name):
			return &ModelError{Object: object, Name: name, Err: ErrInvalidName}
		case reserved(name):
			return &ModelError{Object: object, Name: name, Err: ErrReservedName}
		}
		if _, ok := m.index[name]; ok {
			return &ModelError{Object: object, Name: name, Err: ErrDuplicateName}
		}
		m.index[name] = slot
		return nil
	}
	m.atol = make([]float64, m.nsp)
	m.rtol = make([]float64, m.nsp)
	for i, s := range m.model.Species {
		if err := add("species", s.Name, i); err != nil {
			return err
		}
		switch {
		case s.ATol < 0 || s.RTol < 0 || (s.ATol > 0) != (s.RTol > 0):
			return &ModelError{Object: "species", Name: s.Name, Err: ErrTolerance}
		case s.ATol > 0:
			m.atol[i], m.rtol[i] = s.ATol, s.RTol
		default:
			m.atol[i], m.rtol[i] = m.opts.ATol, m.opts.RTol
		}
	}
	m.coefValues = make([]float64, m.ncoef)
	for i, c := range m.model.Coefficients {
		if err := add("coefficient", c.Name, m.nsp+i); err != nil {
			return err
		}
		if c.Kind != Parameter && (len(c.PipeValues) > 0 || len(c.TankValues) > 0) {
			return &ModelError{Object: "coefficient", Name: c.Name, Err: ErrNotParameter}
		}
		m.coefValues[i] = c.Value
	}
	for i, t := range m.model.Terms {
		if err := add("term", t.Name, m.nsp+m.ncoef+i); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mechanism) resolve(name string) (int, bool) {
	if i, ok := m.index[name]; ok {
		return i, true
	}
	for i, h := range pipemsx.HydraulicVariables {
		if name == h {
			return m.nsp + m.ncoef + m.nterm + i, true
		}
	}
	return 0, false
}

func (m *Mechanism) parse(object, name, text string) (*expr.Expression, error) {
	e, err := expr.Parse(text)
	if err != nil {
		return nil, &ModelError{Object: object, Name: name, Err: err}
	}
	if err = e.Bind(m.resolve); err != nil {
		return nil, &ModelError{Object: object, Name: name, Err: err}
	}
	return e, nil
}

// termNumber returns the term number of name, if it is a term.
func (m *Mechanism) termNumber(name string) (int, bool) {
	i, ok := m.index[name]
	i -= m.nsp + m.ncoef
	return i, ok && i >= 0 && i < m.nterm
}

func (m *Mechanism) compileTerms() error {
	m.terms = make([]*expr.Expression, m.nterm)
	for i, t := range m.model.Terms {
		e, err := m.parse("term", t.Name, t.Expression)
		if err != nil {
			return err
		}
		m.terms[i] = e
	}

	// Order the terms so each is evaluated after the terms it uses.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, m.nterm)
	var path []string
	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			path = append(path, m.model.Terms[i].Name)
			return &ModelError{Object: "term", Name: m.model.Terms[i].Name,
				Err: fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))}
		}
		state[i] = visiting
		path = append(path, m.model.Terms[i].Name)
		for _, name := range m.terms[i].Names() {
			if j, ok := m.termNumber(name); ok {
				if err := visit(j); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[i] = done
		m.termOrder = append(m.termOrder, i)
		return nil
	}
	for i := range m.terms {
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}

// speciesUsed returns the species that e refers to, either directly or
// through terms.
func (m *Mechanism) speciesUsed(e *expr.Expression) map[int]bool {
	o := make(map[int]bool)
	seen := make(map[int]bool)
	var walk func(names []string)
	walk = func(names []string) {
		for _, name := range names {
			if t, ok := m.termNumber(name); ok {
				if !seen[t] {
					seen[t] = true
					walk(m.terms[t].Names())
				}
				continue
			}
			if i, ok := m.index[name]; ok && i < m.nsp {
				o[i] = true
			}
		}
	}
	walk(e.Names())
	return o
}

func (m *Mechanism) compileReactions(loc pipemsx.Location, rxns []Reaction) (*reactions, error) {
	object := loc.String() + " reaction"
	r := &reactions{loc: loc}
	kinds := make(map[int]ReactionKind)
	exprs := make(map[int]*expr.Expression)
	for _, rx := range rxns {
		i, ok := m.index[rx.Species]
		if !ok || i >= m.nsp {
			return nil, &ModelError{Object: object, Name: rx.Species, Err: ErrUndeclared}
		}
		if _, ok := kinds[i]; ok {
			return nil, &ModelError{Object: object, Name: rx.Species, Err: ErrDuplicateReaction}
		}
		if loc == pipemsx.InTank && m.model.Species[i].Type == Wall {
			return nil, &ModelError{Object: object, Name: rx.Species, Err: ErrWallInTank}
		}
		e, err := m.parse(object, rx.Species, rx.Expression)
		if err != nil {
			return nil, err
		}
		kinds[i] = rx.Kind
		exprs[i] = e
		switch rx.Kind {
		case Rate:
			r.rate = append(r.rate, i)
			r.rateExpr = append(r.rateExpr, e)
			r.atol = append(r.atol, m.atol[i])
			r.rtol = append(r.rtol, m.rtol[i])
		case Equil:
			r.equil = append(r.equil, i)
			r.equilExpr = append(r.equilExpr, e)
		}
	}

	// Formula species are computed after the rates and equilibria are
	// resolved, so nothing that feeds those may depend on them.
	for _, rx := range rxns {
		i := m.index[rx.Species]
		if kinds[i] == Formula {
			continue
		}
		for j := range m.speciesUsed(exprs[i]) {
			if kinds[j] == Formula && exprs[j] != nil {
				return nil, &ModelError{Object: object, Name: rx.Species,
					Err: fmt.Errorf("%w: %s", ErrFormulaFeedback, m.model.Species[j].Name)}
			}
		}
	}

	// Order the formulas so each is evaluated after the formulas it
	// uses.
	visiting := make(map[int]bool)
	added := make(map[int]bool)
	var visit func(i int, path []string) error
	visit = func(i int, path []string) error {
		path = append(path, m.model.Species[i].Name)
		if visiting[i] {
			return &ModelError{Object: object, Name: m.model.Species[i].Name,
				Err: fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))}
		}
		if added[i] {
			return nil
		}
		visiting[i] = true
		for j := range m.speciesUsed(exprs[i]) {
			if kinds[j] == Formula && exprs[j] != nil {
				if err := visit(j, path); err != nil {
					return err
				}
			}
		}
		visiting[i] = false
		added[i] = true
		r.formula = append(r.formula, i)
		r.formulaExpr = append(r.formulaExpr, exprs[i])
		return nil
	}
	for _, rx := range rxns {
		if i := m.index[rx.Species]; kinds[i] == Formula {
			if err := visit(i, nil); err != nil {
				return nil, err
			}
		}
	}

	for i, c := range m.model.Coefficients {
		values := c.PipeValues
		if loc == pipemsx.InTank {
			values = c.TankValues
		}
		if len(values) > 0 {
			r.params = append(r.params, parameter{slot: m.nsp + i, values: values})
		}
	}
	r.pool.New = func() interface{} { return m.newWorkspace(r) }
	return r, nil
}

// Species returns the names of the species in storage order.
func (m *Mechanism) Species() []string {
	o := make([]string, m.nsp)
	for i, s := range m.model.Species {
		o[i] = s.Name
	}
	return o
}

// Len returns the number of species.
func (m *Mechanism) Len() int { return m.nsp }

// Index returns the storage position of the named species.
func (m *Mechanism) Index(species string) (int, bool) {
	i, ok := m.index[species]
	if !ok || i >= m.nsp {
		return 0, false
	}
	return i, true
}

// Units returns the units of the named species.
func (m *Mechanism) Units(species string) (string, error) {
	i, ok := m.Index(species)
	if !ok {
		return "", fmt.Errorf("msxchem: invalid species %q", species)
	}
	return m.model.Species[i].Units, nil
}

// IsWall returns whether species i is a wall species.
func (m *Mechanism) IsWall(i int) bool { return m.model.Species[i].Type == Wall }

// Tolerances returns the absolute and relative tolerances of species i.
func (m *Mechanism) Tolerances(i int) (atol, rtol float64) { return m.atol[i], m.rtol[i] }

// Title returns the model title.
func (m *Mechanism) Title() string { return m.model.Title }

// Solver returns the name of the integration method.
func (m *Mechanism) Solver() string { return m.integrator.Name() }
