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

// Package ode integrates systems of ordinary differential equations
// dy/dt = f(t, y) over a fixed interval with error-controlled
// substeps.
package ode

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrStepTooSmall is returned when the substep size falls below
	// Config.MinStep.
	ErrStepTooSmall = errors.New("ode: substep size below minimum")

	// ErrNonFinite is returned when the solution contains NaN or Inf
	// values that step size reduction cannot remove.
	ErrNonFinite = errors.New("ode: non-finite solution")

	// ErrMaxSteps is returned when more than Config.MaxSteps substeps
	// are attempted.
	ErrMaxSteps = errors.New("ode: maximum number of substeps exceeded")
)

// Func calculates the derivatives dy of y at time t.
type Func func(t float64, y, dy []float64) error

// Config holds integration settings.
type Config struct {
	// ATol and RTol are the absolute and relative tolerances for each
	// component of y. A substep is accepted when for every component i
	// its error estimate is at most ATol[i] + RTol[i]*|y[i]|.
	ATol, RTol []float64

	// InitialStep is the size of the first substep attempted. If it is
	// not positive it is estimated from the derivatives at the start of
	// the interval.
	InitialStep float64

	// MinStep is the smallest allowed substep. Default 1e-6.
	MinStep float64

	// MaxSteps is the maximum number of attempted substeps. Default 100000.
	MaxSteps int

	// Accepted, if not nil, is called after every accepted substep with
	// the new time and state.
	Accepted func(t float64, y []float64) error
}

func (c *Config) minStep() float64 {
	if c.MinStep > 0 {
		return c.MinStep
	}
	return 1e-6
}

func (c *Config) maxSteps() int {
	if c.MaxSteps > 0 {
		return c.MaxSteps
	}
	return 100000
}

// errNorm returns the largest ratio of error estimate to allowed error.
func (c *Config) errNorm(y, ynew, errv []float64) float64 {
	var norm float64
	for i, e := range errv {
		tol := c.ATol[i] + c.RTol[i]*math.Max(math.Abs(y[i]), math.Abs(ynew[i]))
		r := math.Abs(e) / tol
		if math.IsNaN(r) {
			return math.Inf(1)
		}
		if r > norm {
			norm = r
		}
	}
	return norm
}

// scaledNorm returns the largest of |v[i]|/(ATol[i]+RTol[i]*|y[i]|).
func (c *Config) scaledNorm(y, v []float64) float64 {
	var norm float64
	for i := range v {
		r := math.Abs(v[i]) / (c.ATol[i] + c.RTol[i]*math.Abs(y[i]))
		if r > norm {
			norm = r
		}
	}
	return norm
}

// initialStep returns the size of the first substep of a method of
// the given order for integrating from t0 to t1, starting from y with
// derivatives f0. Unless Config.InitialStep is set, the step is chosen
// so that the leading error term of an explicit Euler step is small
// compared with the tolerances (Hairer, Nørsett & Wanner, Solving
// Ordinary Differential Equations I, sec. II.4). It makes one extra
// call to f, which is counted in s.
func (c *Config) initialStep(f Func, order int, t0, t1 float64, y, f0 []float64, s *Stats) (float64, error) {
	span := t1 - t0
	if c.InitialStep > 0 {
		return math.Min(c.InitialStep, span), nil
	}
	d0 := c.scaledNorm(y, y)
	d1 := c.scaledNorm(y, f0)
	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	y1 := make([]float64, len(y))
	for i := range y {
		y1[i] = y[i] + h0*f0[i]
	}
	f1 := make([]float64, len(y))
	if err := f(t0+h0, y1, f1); err != nil {
		return 0, err
	}
	s.Evaluations++
	for i := range f1 {
		f1[i] -= f0[i]
	}
	d2 := c.scaledNorm(y, f1) / h0

	var h1 float64
	if dmax := math.Max(d1, d2); dmax <= 1e-15 || math.IsNaN(dmax) {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/dmax, 1/float64(order+1))
	}
	return math.Min(math.Min(100*h0, h1), span), nil
}

// Stats holds integration statistics.
type Stats struct {
	Accepted, Rejected, Evaluations int
	LastStep                        float64
}

// Add adds the counts in s2 to s.
func (s *Stats) Add(s2 Stats) {
	s.Accepted += s2.Accepted
	s.Rejected += s2.Rejected
	s.Evaluations += s2.Evaluations
	s.LastStep = s2.LastStep
}

// Integrator advances y in place from t0 to t1.
type Integrator interface {
	Name() string
	Order() int
	Integrate(f Func, t0, t1 float64, y []float64, cfg *Config) (Stats, error)
}

// New returns the integrator with the given name: EUL, RK3, RK5, or ROS2.
func New(name string) (Integrator, error) {
	switch strings.ToUpper(name) {
	case "EUL", "EULER":
		return Euler{}, nil
	case "RK3":
		return &RungeKutta{BogackiShampine32()}, nil
	case "RK5", "":
		return &RungeKutta{DormandPrince54()}, nil
	case "ROS2":
		return Rosenbrock2{}, nil
	}
	return nil, fmt.Errorf("ode: unknown integrator %q", name)
}

// ForOrder returns the integrator of the given order: 1 (EUL), 2 (ROS2),
// 3 (RK3), or 5 (RK5).
func ForOrder(order int) (Integrator, error) {
	switch order {
	case 1:
		return Euler{}, nil
	case 2:
		return Rosenbrock2{}, nil
	case 3:
		return &RungeKutta{BogackiShampine32()}, nil
	case 5:
		return &RungeKutta{DormandPrince54()}, nil
	}
	return nil, fmt.Errorf("ode: no integrator of order %d", order)
}

// growth returns the factor by which to grow the step after an accepted
// step with the given error norm.
func growth(norm float64, order int) float64 {
	if norm == 0 {
		return 2
	}
	f := 0.9 * math.Pow(norm, -1/float64(order))
	return math.Max(1, math.Min(2, f))
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Euler is the forward Euler method taking a single step over the
// whole interval.
type Euler struct{}

func (Euler) Name() string { return "EUL" }
func (Euler) Order() int   { return 1 }

// Integrate implements Integrator.
func (Euler) Integrate(f Func, t0, t1 float64, y []float64, cfg *Config) (Stats, error) {
	h := t1 - t0
	if h <= 0 {
		return Stats{}, nil
	}
	dy := make([]float64, len(y))
	if err := f(t0, y, dy); err != nil {
		return Stats{Evaluations: 1}, err
	}
	s := Stats{Accepted: 1, Evaluations: 1, LastStep: h}
	for i := range y {
		y[i] += h * dy[i]
	}
	if !finite(y) {
		return s, fmt.Errorf("%w at t=%g", ErrNonFinite, t1)
	}
	if cfg.Accepted != nil {
		if err := cfg.Accepted(t1, y); err != nil {
			return s, err
		}
	}
	return s, nil
}
