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
	"fmt"

	"github.com/spatialmodel/pipemsx"
	"github.com/spatialmodel/pipemsx/science/ode"
	"github.com/spatialmodel/pipemsx/science/rootfind"
)

// workspace holds the scratch memory for one reaction calculation.
type workspace struct {
	m    *Mechanism
	r    *reactions
	vals []float64 // expression values
	y    []float64 // rate species
	x    []float64 // equilibrium species
	f    ode.Func
}

func (m *Mechanism) newWorkspace(r *reactions) *workspace {
	w := &workspace{
		m:    m,
		r:    r,
		vals: make([]float64, m.nsp+m.ncoef+m.nterm+pipemsx.NumHydraulicVars),
		y:    make([]float64, len(r.rate)),
		x:    make([]float64, len(r.equil)),
	}
	w.f = w.derivatives
	return w
}

// load copies the concentrations, coefficients, and hydraulic variables
// for env into the value slice.
func (w *workspace) load(env *pipemsx.Environment, c []float64) {
	m := w.m
	copy(w.vals, c[:m.nsp])
	copy(w.vals[m.nsp:], m.coefValues)
	for _, p := range w.r.params {
		if v, ok := p.values[env.Element]; ok {
			w.vals[p.slot] = v
		}
	}
	copy(w.vals[m.nsp+m.ncoef+m.nterm:], env.Hydraulics[:])
}

func (w *workspace) setRate(y []float64) {
	for j, i := range w.r.rate {
		w.vals[i] = y[j]
	}
}

func (w *workspace) evalTerms() {
	base := w.m.nsp + w.m.ncoef
	for _, i := range w.m.termOrder {
		w.vals[base+i] = w.m.terms[i].Eval(w.vals)
	}
}

// derivatives is the right hand side of the rate equations, in units
// of concentration per second.
func (w *workspace) derivatives(_ float64, y, dy []float64) error {
	w.setRate(y)
	if w.m.full {
		if err := w.equilibrate(); err != nil {
			return err
		}
	} else {
		w.evalTerms()
	}
	for j, e := range w.r.rateExpr {
		dy[j] = e.Eval(w.vals) / w.m.secPer
	}
	return nil
}

// equilibrate solves the equilibrium expressions for the equilibrium
// species, starting from their current values, and then updates the
// terms.
func (w *workspace) equilibrate() error {
	r := w.r
	switch len(r.equil) {
	case 0:
	case 1:
		i, e := r.equil[0], r.equilExpr[0]
		x, _, err := rootfind.Newton1D(func(x float64) float64 {
			w.vals[i] = x
			w.evalTerms()
			return e.Eval(w.vals)
		}, w.vals[i], w.m.rootCfg)
		if err != nil {
			return fmt.Errorf("msxchem: equilibrium of %s: %w", w.m.model.Species[i].Name, err)
		}
		w.vals[i] = x
	default:
		for j, i := range r.equil {
			w.x[j] = w.vals[i]
		}
		_, err := rootfind.NewtonN(func(x, fx []float64) {
			for j, i := range r.equil {
				w.vals[i] = x[j]
			}
			w.evalTerms()
			for j, e := range r.equilExpr {
				fx[j] = e.Eval(w.vals)
			}
		}, w.x, w.m.rootCfg)
		if err != nil {
			return fmt.Errorf("msxchem: equilibrium of %d species: %w", len(r.equil), err)
		}
		for j, i := range r.equil {
			w.vals[i] = w.x[j]
		}
	}
	w.evalTerms()
	return nil
}

func (w *workspace) formulas() {
	for j, i := range w.r.formula {
		w.evalTerms()
		w.vals[i] = w.r.formulaExpr[j].Eval(w.vals)
	}
}

// react advances the values in w through Δt seconds.
func (w *workspace) react(Δt float64) (ode.Stats, error) {
	var stats ode.Stats
	r := w.r
	if Δt > 0 && len(r.rate) > 0 {
		if err := w.equilibrate(); err != nil {
			return stats, err
		}
		for j, i := range r.rate {
			w.y[j] = w.vals[i]
		}
		cfg := ode.Config{
			ATol:     r.atol,
			RTol:     r.rtol,
			MinStep:  w.m.opts.MinStep,
			MaxSteps: w.m.opts.MaxSteps,
		}
		if !w.m.full && len(r.equil) > 0 {
			cfg.Accepted = func(_ float64, y []float64) error {
				w.setRate(y)
				return w.equilibrate()
			}
		}
		var err error
		stats, err = w.m.integrator.Integrate(w.f, 0, Δt, w.y, &cfg)
		if err != nil {
			return stats, fmt.Errorf("msxchem: %s integration: %w", w.m.integrator.Name(), err)
		}
		w.setRate(w.y)
	}
	if err := w.equilibrate(); err != nil {
		return stats, err
	}
	w.formulas()
	return stats, nil
}

// Chemistry returns a function that simulates the reactions that take
// place at loc. Species without a reaction at loc keep their values.
func (m *Mechanism) Chemistry(loc pipemsx.Location) pipemsx.Reactor {
	r := m.pipe
	if loc == pipemsx.InTank {
		r = m.tank
	}
	return func(env *pipemsx.Environment, c []float64, Δt float64) (pipemsx.ReactionStats, error) {
		w := r.pool.Get().(*workspace)
		defer r.pool.Put(w)
		w.load(env, c)
		s, err := w.react(Δt)
		stats := pipemsx.ReactionStats{Accepted: s.Accepted, Rejected: s.Rejected, Evaluations: s.Evaluations}
		if err != nil {
			return stats, err
		}
		copy(c, w.vals[:m.nsp])
		return stats, nil
	}
}
