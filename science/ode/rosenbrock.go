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

package ode

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rosenbrock2 is the second order, L-stable Rosenbrock method of
// Verwer et al. (1999) for stiff systems, with an embedded first order
// solution for error control. The Jacobian is estimated by forward
// differences at the start of every attempted substep.
type Rosenbrock2 struct{}

func (Rosenbrock2) Name() string { return "ROS2" }
func (Rosenbrock2) Order() int   { return 2 }

const ros2Gamma = 1 + 1/math.Sqrt2

// Integrate implements Integrator.
func (Rosenbrock2) Integrate(f Func, t0, t1 float64, y []float64, cfg *Config) (Stats, error) {
	var s Stats
	n := len(y)
	if n == 0 || t1 <= t0 {
		return s, nil
	}
	f0 := make([]float64, n)
	f1 := make([]float64, n)
	ftmp := make([]float64, n)
	ytmp := make([]float64, n)
	ynew := make([]float64, n)
	errv := make([]float64, n)
	jac := mat.NewDense(n, n, nil)
	m := mat.NewDense(n, n, nil)
	var lu mat.LU
	var k1, k2, e mat.VecDense

	if err := f(t0, y, f0); err != nil {
		return s, err
	}
	s.Evaluations++
	h, err := cfg.initialStep(f, 2, t0, t1, y, f0, &s)
	if err != nil {
		return s, err
	}
	minStep := math.Min(cfg.minStep(), t1-t0)
	t := t0
	fresh := true
	for t < t1 {
		if s.Accepted+s.Rejected >= cfg.maxSteps() {
			return s, fmt.Errorf("%w (%d) at t=%g", ErrMaxSteps, cfg.maxSteps(), t)
		}
		last := t+h >= t1
		if last {
			h = t1 - t
		}

		if !fresh {
			if err := f(t, y, f0); err != nil {
				return s, err
			}
			s.Evaluations++
			fresh = true
		}
		for j := 0; j < n; j++ {
			δ := 1.4901161193847656e-08 * math.Max(1, math.Abs(y[j]))
			copy(ytmp, y)
			ytmp[j] += δ
			if err := f(t, ytmp, ftmp); err != nil {
				return s, err
			}
			s.Evaluations++
			for i := 0; i < n; i++ {
				jac.Set(i, j, (ftmp[i]-f0[i])/δ)
			}
		}

		var ferr error
		solved := func() bool {
			// m = I - γhJ
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					v := -ros2Gamma * h * jac.At(i, j)
					if i == j {
						v++
					}
					m.Set(i, j, v)
				}
			}
			lu.Factorize(m)
			if c := lu.Cond(); math.IsInf(c, 1) || math.IsNaN(c) {
				return false
			}
			if err := lu.SolveVecTo(&k1, false, mat.NewVecDense(n, append([]float64(nil), f0...))); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					return false
				}
			}
			for i := range ytmp {
				ytmp[i] = y[i] + h*k1.AtVec(i)
			}
			if ferr = f(t+h, ytmp, f1); ferr != nil {
				return false
			}
			s.Evaluations++
			rhs := make([]float64, n)
			for i := range rhs {
				rhs[i] = f1[i] - 2*k1.AtVec(i)
			}
			if err := lu.SolveVecTo(&k2, false, mat.NewVecDense(n, rhs)); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					return false
				}
			}
			for i := range y {
				ynew[i] = y[i] + 1.5*h*k1.AtVec(i) + 0.5*h*k2.AtVec(i)
				errv[i] = 0.5 * h * (k1.AtVec(i) + k2.AtVec(i))
			}
			// Filter the estimate through (I - γhJ)⁻¹ so that quickly
			// decaying components do not limit the step size
			// (Shampine, 1982).
			if err := lu.SolveVecTo(&e, false, mat.NewVecDense(n, errv)); err != nil {
				if _, ok := err.(mat.Condition); !ok {
					return false
				}
			}
			for i := range errv {
				errv[i] = e.AtVec(i)
			}
			return true
		}()
		if ferr != nil {
			return s, ferr
		}

		norm := math.Inf(1)
		if solved && finite(ynew) {
			norm = cfg.errNorm(y, ynew, errv)
		}
		if norm <= 1 {
			s.Accepted++
			s.LastStep = h
			copy(y, ynew)
			fresh = false
			if last {
				t = t1
			} else {
				t += h
			}
			if cfg.Accepted != nil {
				if err := cfg.Accepted(t, y); err != nil {
					return s, err
				}
			}
			h *= growth(norm, 2)
			continue
		}
		s.Rejected++
		h /= 2
		if h < minStep {
			if solved && !finite(ynew) {
				return s, fmt.Errorf("%w at t=%g", ErrNonFinite, t)
			}
			return s, fmt.Errorf("%w (%g) at t=%g", ErrStepTooSmall, h, t)
		}
	}
	return s, nil
}
