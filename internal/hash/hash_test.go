/*
Copyright © 2019 the PipeMSX authors.
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
along with PipeMSX.  If not, see <http://www.gnu.org/licenses/>.*/

package hash

import (
	"math"
	"testing"
)

func TestHash(t *testing.T) {
	type rec struct {
		Name   string
		Values []float64
	}
	a := Hash(rec{Name: "P1", Values: []float64{1, 2, 3}})
	b := Hash(rec{Name: "P1", Values: []float64{1, 2, 3}})
	c := Hash(rec{Name: "P1", Values: []float64{1, 2, 3.0000001}})
	if a != b {
		t.Errorf("equal values have different digests: %s != %s", a, b)
	}
	if a == c {
		t.Errorf("different values have the same digest %s", a)
	}
	if len(a) != 32 {
		t.Errorf("digest %q has length %d, want 32", a, len(a))
	}
	n1 := Hash(rec{Values: []float64{math.NaN()}})
	n2 := Hash(rec{Values: []float64{math.NaN()}})
	if n1 != n2 {
		t.Errorf("NaN digests differ: %s != %s", n1, n2)
	}
}
