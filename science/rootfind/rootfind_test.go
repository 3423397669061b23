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

package rootfind

import (
	"errors"
	"math"
	"testing"
)

func different(a, b, tolerance float64) bool {
	return 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}

func TestNewton1DLinear(t *testing.T) {
	// Langmuir equilibrium with Ks=5, Smax=50, AS5=1.
	const ks, smax, as5 = 5., 50., 1.
	f := func(s float64) float64 { return ks*smax*as5/(1+ks*as5) - s }
	x, iter, err := Newton1D(f, 0, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if want := 250. / 6.; different(x, want, 1e-10) {
		t.Errorf("x = %g; want %g", x, want)
	}
	if iter > 3 {
		t.Errorf("linear problem took %d iterations", iter)
	}
}

func TestNewton1DNonlinear(t *testing.T) {
	x, _, err := Newton1D(func(x float64) float64 { return x*x - 2 }, 1, Config{Tol: 1e-12})
	if err != nil {
		t.Fatal(err)
	}
	if different(x, math.Sqrt2, 1e-10) {
		t.Errorf("x = %g; want %g", x, math.Sqrt2)
	}
}

func TestNewton1DBracket(t *testing.T) {
	// atan has a Newton overshoot problem far from the root; once a sign
	// change is seen the bracket keeps iterates bounded.
	x, _, err := Newton1D(func(x float64) float64 { return math.Atan(x - 3) }, 0.5, Config{MaxIter: 200})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x-3) > 1e-7 {
		t.Errorf("x = %g; want 3", x)
	}
}

func TestNewton1DFailures(t *testing.T) {
	t.Run("singular", func(t *testing.T) {
		_, _, err := Newton1D(func(x float64) float64 { return 1 }, 0, Config{})
		if !errors.Is(err, ErrSingular) {
			t.Errorf("want ErrSingular, got %v", err)
		}
	})
	t.Run("noconvergence", func(t *testing.T) {
		// No real root.
		_, _, err := Newton1D(func(x float64) float64 { return x*x + 1 }, 0.5, Config{MaxIter: 10})
		if !errors.Is(err, ErrNoConvergence) && !errors.Is(err, ErrSingular) {
			t.Errorf("want ErrNoConvergence, got %v", err)
		}
	})
	t.Run("nonfinite", func(t *testing.T) {
		_, _, err := Newton1D(func(x float64) float64 { return math.NaN() }, 0, Config{})
		if !errors.Is(err, ErrNonFinite) {
			t.Errorf("want ErrNonFinite, got %v", err)
		}
	})
}

func TestNewtonN(t *testing.T) {
	// x + y = 3, x*y = 2, with the root nearest the start at (1, 2).
	f := func(x, fx []float64) {
		fx[0] = x[0] + x[1] - 3
		fx[1] = x[0]*x[1] - 2
	}
	x := []float64{0.8, 2.3}
	if _, err := NewtonN(f, x, Config{Tol: 1e-12}); err != nil {
		t.Fatal(err)
	}
	if math.Abs(x[0]-1) > 1e-8 || math.Abs(x[1]-2) > 1e-8 {
		t.Errorf("x = %v; want [1 2]", x)
	}
}

func TestNewtonNSingular(t *testing.T) {
	f := func(x, fx []float64) {
		fx[0] = x[0] + x[1] - 1
		fx[1] = 2*x[0] + 2*x[1] - 5
	}
	_, err := NewtonN(f, []float64{0, 0}, Config{})
	if !errors.Is(err, ErrSingular) && !errors.Is(err, ErrNoConvergence) {
		t.Errorf("want failure for inconsistent system, got %v", err)
	}
}

func TestBisect(t *testing.T) {
	x, _, err := Bisect(math.Cos, 0, 3, Config{Tol: 1e-12})
	if err != nil {
		t.Fatal(err)
	}
	if different(x, math.Pi/2, 1e-9) {
		t.Errorf("x = %g; want π/2", x)
	}
	if _, _, err := Bisect(math.Cos, 0, 1, Config{}); err == nil {
		t.Error("want error for interval without sign change")
	}
}
