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
)

// Tableau is the Butcher tableau of an explicit embedded Runge-Kutta
// pair. E holds the differences between the weights of the solution
// and of the embedded lower-order solution.
type Tableau struct {
	Name  string
	Order int
	C     []float64
	A     [][]float64
	B     []float64
	E     []float64
}

// DormandPrince54 returns the Dormand-Prince 5(4) pair.
func DormandPrince54() *Tableau {
	return &Tableau{
		Name:  "RK5",
		Order: 5,
		C:     []float64{0, 1. / 5, 3. / 10, 4. / 5, 8. / 9, 1, 1},
		A: [][]float64{
			{},
			{1. / 5},
			{3. / 40, 9. / 40},
			{44. / 45, -56. / 15, 32. / 9},
			{19372. / 6561, -25360. / 2187, 64448. / 6561, -212. / 729},
			{9017. / 3168, -355. / 33, 46732. / 5247, 49. / 176, -5103. / 18656},
			{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84},
		},
		B: []float64{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84, 0},
		E: []float64{
			35./384 - 5179./57600,
			0,
			500./1113 - 7571./16695,
			125./192 - 393./640,
			-2187./6784 + 92097./339200,
			11./84 - 187./2100,
			-1. / 40,
		},
	}
}

// BogackiShampine32 returns the Bogacki-Shampine 3(2) pair.
func BogackiShampine32() *Tableau {
	return &Tableau{
		Name:  "RK3",
		Order: 3,
		C:     []float64{0, 0.5, 0.75, 1},
		A: [][]float64{
			{},
			{0.5},
			{0, 0.75},
			{2. / 9, 1. / 3, 4. / 9},
		},
		B: []float64{2. / 9, 1. / 3, 4. / 9, 0},
		E: []float64{2./9 - 7./24, 1./3 - 1./4, 4./9 - 1./3, -1. / 8},
	}
}

// RungeKutta is an adaptive explicit Runge-Kutta integrator. Rejected
// substeps are halved; accepted substeps may grow by at most a factor
// of two.
type RungeKutta struct {
	*Tableau
}

func (rk *RungeKutta) Name() string { return rk.Tableau.Name }
func (rk *RungeKutta) Order() int   { return rk.Tableau.Order }

// Integrate implements Integrator.
func (rk *RungeKutta) Integrate(f Func, t0, t1 float64, y []float64, cfg *Config) (Stats, error) {
	var s Stats
	n := len(y)
	stages := len(rk.B)
	k := make([][]float64, stages)
	for i := range k {
		k[i] = make([]float64, n)
	}
	ytmp := make([]float64, n)
	ynew := make([]float64, n)
	errv := make([]float64, n)

	if t1 <= t0 {
		return s, nil
	}
	// The first stage of every step is the derivative at its start.
	if err := f(t0, y, k[0]); err != nil {
		return s, err
	}
	s.Evaluations++
	h, err := cfg.initialStep(f, rk.Tableau.Order, t0, t1, y, k[0], &s)
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
		for i := 0; i < stages; i++ {
			if i == 0 && fresh {
				continue
			}
			copy(ytmp, y)
			for j, a := range rk.A[i] {
				if a == 0 {
					continue
				}
				for m := range ytmp {
					ytmp[m] += h * a * k[j][m]
				}
			}
			if err := f(t+rk.C[i]*h, ytmp, k[i]); err != nil {
				return s, err
			}
			s.Evaluations++
		}
		fresh = true
		for m := range y {
			var sum, e float64
			for i := 0; i < stages; i++ {
				sum += rk.B[i] * k[i][m]
				e += rk.E[i] * k[i][m]
			}
			ynew[m] = y[m] + h*sum
			errv[m] = h * e
		}

		norm := math.Inf(1)
		if finite(ynew) {
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
			h *= growth(norm, rk.Tableau.Order)
			continue
		}
		s.Rejected++
		h /= 2
		if h < minStep {
			if !finite(ynew) {
				return s, fmt.Errorf("%w at t=%g", ErrNonFinite, t)
			}
			return s, fmt.Errorf("%w (%g) at t=%g", ErrStepTooSmall, h, t)
		}
	}
	return s, nil
}
