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

// Package rootfind finds zeros of algebraic equations with a bounded
// number of Newton iterations. Every function either returns a converged
// result or an error; there is no silently best-effort answer.
package rootfind

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoConvergence is returned when the iteration limit is reached.
	ErrNoConvergence = errors.New("rootfind: no convergence")

	// ErrSingular is returned when the derivative or Jacobian is zero or
	// singular and no bracketing interval is available.
	ErrSingular = errors.New("rootfind: singular derivative")

	// ErrNonFinite is returned when the function returns NaN or Inf.
	ErrNonFinite = errors.New("rootfind: non-finite function value")
)

// Config holds iteration settings.
type Config struct {
	// MaxIter is the maximum number of Newton iterations. Default 50.
	MaxIter int

	// Tol is the convergence tolerance: iteration stops when every
	// update satisfies |Δx| <= Tol*(1+|x|). Default 1e-9.
	Tol float64
}

func (c Config) withDefaults() Config {
	if c.MaxIter <= 0 {
		c.MaxIter = 50
	}
	if c.Tol <= 0 {
		c.Tol = 1e-9
	}
	return c
}

var sqrtEps = math.Sqrt(2.220446049250313e-16)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func converged(dx, x, tol float64) bool {
	return math.Abs(dx) <= tol*(1+math.Abs(x))
}

// Newton1D finds x such that f(x) = 0, starting from x0. The derivative
// is estimated by forward differences. Once two iterates with opposite
// signs of f have been seen, steps that leave the bracketing interval
// are replaced by bisection.
func Newton1D(f func(float64) float64, x0 float64, cfg Config) (float64, int, error) {
	cfg = cfg.withDefaults()
	x := x0
	fx := f(x)
	if !finite(fx) {
		return x, 0, fmt.Errorf("%w at x=%g", ErrNonFinite, x)
	}
	if fx == 0 {
		return x, 0, nil
	}
	var lo, hi, flo float64
	bracketed := false
	for iter := 1; iter <= cfg.MaxIter; iter++ {
		h := sqrtEps * math.Max(1, math.Abs(x))
		d := (f(x+h) - fx) / h

		xn := math.NaN()
		if d != 0 && finite(d) {
			xn = x - fx/d
		}
		if !finite(xn) || (bracketed && (xn <= lo || xn >= hi)) {
			if !bracketed {
				return x, iter, fmt.Errorf("%w at x=%g", ErrSingular, x)
			}
			xn = 0.5 * (lo + hi)
		}
		fn := f(xn)
		if !finite(fn) {
			if !bracketed {
				return xn, iter, fmt.Errorf("%w at x=%g", ErrNonFinite, xn)
			}
			xn = 0.5 * (lo + hi)
			if fn = f(xn); !finite(fn) {
				return xn, iter, fmt.Errorf("%w at x=%g", ErrNonFinite, xn)
			}
		}

		// Maintain the bracketing interval.
		switch {
		case fx*fn < 0:
			lo, hi, flo = math.Min(x, xn), math.Max(x, xn), fx
			if xn < x {
				flo = fn
			}
			bracketed = true
		case bracketed && fn*flo > 0:
			lo, flo = xn, fn
		case bracketed:
			hi = xn
		}

		done := fn == 0 || converged(xn-x, xn, cfg.Tol)
		x, fx = xn, fn
		if done {
			return x, iter, nil
		}
	}
	return x, cfg.MaxIter, fmt.Errorf("%w after %d iterations (x=%g, f=%g)", ErrNoConvergence, cfg.MaxIter, x, fx)
}

// NewtonN solves the system f(x) = 0 in place, starting from the
// values in x. f writes the residuals for x into fx. The Jacobian is
// estimated by forward differences and each update is damped by step
// halving until the residual norm decreases.
func NewtonN(f func(x, fx []float64), x []float64, cfg Config) (int, error) {
	cfg = cfg.withDefaults()
	n := len(x)
	if n == 0 {
		return 0, nil
	}
	fx := make([]float64, n)
	ft := make([]float64, n)
	xt := make([]float64, n)
	f(x, fx)
	if !allFinite(fx) {
		return 0, fmt.Errorf("%w at x=%v", ErrNonFinite, x)
	}
	norm := maxNorm(fx)
	if norm == 0 {
		return 0, nil
	}
	jac := mat.NewDense(n, n, nil)
	for iter := 1; iter <= cfg.MaxIter; iter++ {
		for j := 0; j < n; j++ {
			h := sqrtEps * math.Max(1, math.Abs(x[j]))
			xj := x[j]
			x[j] += h
			f(x, ft)
			x[j] = xj
			for i := 0; i < n; i++ {
				jac.Set(i, j, (ft[i]-fx[i])/h)
			}
		}
		var dx mat.VecDense
		if err := dx.SolveVec(jac, mat.NewVecDense(n, append([]float64(nil), fx...))); err != nil {
			return iter, fmt.Errorf("%w: %v", ErrSingular, err)
		}

		λ := 1.0
		var tnorm float64
		for k := 0; k < 10; k++ {
			for i := range x {
				xt[i] = x[i] - λ*dx.AtVec(i)
			}
			f(xt, ft)
			tnorm = maxNorm(ft)
			if allFinite(ft) && tnorm <= norm {
				break
			}
			λ /= 2
		}
		if !allFinite(ft) {
			return iter, fmt.Errorf("%w at x=%v", ErrNonFinite, xt)
		}

		done := tnorm == 0
		if !done {
			done = true
			for i := range x {
				if !converged(xt[i]-x[i], xt[i], cfg.Tol) {
					done = false
					break
				}
			}
		}
		copy(x, xt)
		copy(fx, ft)
		norm = tnorm
		if done {
			return iter, nil
		}
	}
	return cfg.MaxIter, fmt.Errorf("%w after %d iterations (x=%v, f=%v)", ErrNoConvergence, cfg.MaxIter, x, fx)
}

// Bisect finds a zero of f within [a, b], where f(a) and f(b) must
// have opposite signs.
func Bisect(f func(float64) float64, a, b float64, cfg Config) (float64, int, error) {
	cfg = cfg.withDefaults()
	fa, fb := f(a), f(b)
	if !finite(fa) || !finite(fb) {
		return a, 0, ErrNonFinite
	}
	if fa == 0 {
		return a, 0, nil
	}
	if fb == 0 {
		return b, 0, nil
	}
	if fa*fb > 0 {
		return a, 0, fmt.Errorf("rootfind: interval [%g, %g] does not bracket a root", a, b)
	}
	// Bisection needs more iterations than Newton for the same accuracy.
	maxIter := 4 * cfg.MaxIter
	for iter := 1; iter <= maxIter; iter++ {
		m := 0.5 * (a + b)
		fm := f(m)
		if !finite(fm) {
			return m, iter, ErrNonFinite
		}
		if fm == 0 || converged(b-a, m, cfg.Tol) {
			return m, iter, nil
		}
		if fa*fm < 0 {
			b = m
		} else {
			a, fa = m, fm
		}
	}
	return 0.5 * (a + b), maxIter, ErrNoConvergence
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}

func maxNorm(v []float64) float64 {
	var m float64
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
