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

import "math"

// Indices of the hydraulic variables in Environment.Hydraulics.
const (
	HydD   = iota // pipe diameter
	HydKc         // pipe roughness coefficient
	HydQ          // flow rate, volume/s
	HydU          // flow velocity
	HydRe         // Reynolds number
	HydUs         // shear velocity
	HydFf         // Darcy-Weisbach friction factor
	HydAv         // pipe surface area per unit volume
	HydLen        // pipe length
	NumHydraulicVars
)

// HydraulicVariables are the names by which kinetic expressions refer
// to the hydraulic variables, in index order.
var HydraulicVariables = []string{"D", "Kc", "Q", "U", "Re", "Us", "Ff", "Av", "Len"}

// Environment describes the conditions in which reactions take place.
type Environment struct {
	Location Location
	Element  string
	Step     int
	Time     float64 // start of the current timestep [s]

	Hydraulics [NumHydraulicVars]float64
}

// pipeHydraulics calculates the hydraulic variables for pipe p carrying
// flow q. ff is the friction factor from the hydraulic solution, or zero
// if it should be estimated.
func pipeHydraulics(p *Pipe, q, ff, viscosity float64) [NumHydraulicVars]float64 {
	var h [NumHydraulicVars]float64
	h[HydD] = p.Diameter
	h[HydKc] = p.Roughness
	h[HydQ] = math.Abs(q)
	h[HydLen] = p.Length
	if p.Diameter <= 0 {
		return h
	}
	area := math.Pi * p.Diameter * p.Diameter / 4
	h[HydU] = math.Abs(q) / area
	h[HydAv] = 4 / p.Diameter
	if viscosity > 0 {
		h[HydRe] = h[HydU] * p.Diameter / viscosity
	}
	if ff <= 0 {
		ff = frictionFactor(h[HydRe], p.Roughness, p.Diameter)
	}
	h[HydFf] = ff
	h[HydUs] = h[HydU] * math.Sqrt(ff/8)
	return h
}

// frictionFactor estimates the Darcy-Weisbach friction factor for
// Reynolds number re, absolute roughness e and diameter d, using the
// laminar solution below Re=2000 and the Swamee-Jain equation above.
func frictionFactor(re, e, d float64) float64 {
	switch {
	case re <= 0:
		return 0
	case re < 2000:
		return 64 / re
	}
	if e < 0 {
		e = 0
	}
	l := math.Log10(e/(3.7*d) + 5.74/math.Pow(re, 0.9))
	return 0.25 / (l * l)
}
