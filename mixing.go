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

import (
	"math"
)

// Mix returns a function that calculates the concentration of the water
// leaving each node from the water delivered to it by pipes during the
// current timestep, external inflows, and sources. It must run after
// all pipes have been transported. Nodes that receive no water keep
// their previous concentration.
func Mix() DomainManipulator {
	return func(d *PipeMSX) error {
		nsp := d.Mechanism.Len()
		for _, n := range d.Network.Nodes {
			n.inV = 0
			if len(n.inMass) != nsp {
				n.inMass = make([]float64, nsp)
			}
			for k := range n.inMass {
				n.inMass[k] = 0
			}
		}
		for _, p := range d.Network.Pipes {
			if p.outV <= 0 {
				continue
			}
			n := p.downstream()
			n.inV += p.outV
			for k, m := range p.outMass {
				n.inMass[k] += m
			}
		}
		for _, n := range d.Network.Nodes {
			if d.Options.CheckConservation {
				if err := d.checkDelivery(n); err != nil {
					return err
				}
			}
			switch n.Kind {
			case Junction:
				if d.mixJunction(n) {
					d.boost(n, d.Time)
				}
			case Reservoir:
				// Reported at the end of the timestep.
				d.setReservoir(n, d.Time+d.Dt)
			case TankNode:
				d.mixTank(n)
				d.boost(n, d.Time)
			}
		}
		return nil
	}
}

// Boundaries returns a function that sets the concentration of every
// reservoir for the start of the timestep, so that water entering pipes
// from a reservoir carries the boundary value and the sources active
// during the timestep.
func Boundaries() DomainManipulator {
	return func(d *PipeMSX) error {
		for _, n := range d.Network.Nodes {
			if n.Kind == Reservoir {
				d.setReservoir(n, d.Time)
			}
		}
		return nil
	}
}

// checkDelivery returns a *ConservationViolation if the water and
// species mass accumulated at node n differ from what the pipes
// connected to it delivered.
func (d *PipeMSX) checkDelivery(n *Node) error {
	var v float64
	for _, p := range d.Network.PipesAt(n) {
		if p.downstream() == n {
			v += p.outV
		}
	}
	if !withinTol(v, n.inV, d.Options.VolumeTol) {
		return d.nodeViolation(n, "volume", v, n.inV)
	}
	for k, got := range n.inMass {
		var m float64
		for _, p := range d.Network.PipesAt(n) {
			if p.downstream() == n {
				m += p.outMass[k]
			}
		}
		if !withinTol(m, got, d.Options.MassTol) || math.IsNaN(got) {
			return d.nodeViolation(n, d.Mechanism.Species()[k], m, got)
		}
	}
	return nil
}

func (d *PipeMSX) nodeViolation(n *Node, quantity string, expected, actual float64) *ConservationViolation {
	return &ConservationViolation{
		Kind:     NodeElement,
		Element:  n.Name,
		Step:     d.Step + 1,
		Time:     d.Time,
		Quantity: quantity,
		Expected: expected,
		Actual:   actual,
	}
}

// external returns the volume of external inflow to node n during the
// current timestep.
func (d *PipeMSX) external(n *Node) float64 {
	if n.demand >= 0 {
		return 0
	}
	return -n.demand * d.Dt
}

// concen returns the concentration of species k in external inflow to
// node n.
func (d *PipeMSX) concen(n *Node, k int) float64 {
	var c float64
	for _, s := range n.sources {
		if s.species != k || s.Type != Concen {
			continue
		}
		if v, ok := s.at(d.Time); ok {
			c = v
		}
	}
	return c
}

// massRate returns the total rate [mass/s] at which MASS sources add
// species k at node n.
func (d *PipeMSX) massRate(n *Node, k int) float64 {
	var r float64
	for _, s := range n.sources {
		if s.species != k || s.Type != Mass {
			continue
		}
		if v, ok := s.at(d.Time); ok {
			r += v
		}
	}
	return r
}

// mixJunction returns false if no water reached node n.
func (d *PipeMSX) mixJunction(n *Node) bool {
	ext := d.external(n)
	v := n.inV + ext
	if v <= 0 {
		return false
	}
	for k := range n.C {
		if d.Mechanism.IsWall(k) {
			n.C[k] = 0
			continue
		}
		m := n.inMass[k] + ext*d.concen(n, k) + d.massRate(n, k)*d.Dt
		n.C[k] = m / v
	}
	return true
}

// setReservoir sets the concentration of reservoir n at time t to its
// boundary value, replaced by the strength of any active CONCEN source
// and raised by any booster source.
func (d *PipeMSX) setReservoir(n *Node, t float64) {
	copy(n.C, n.boundary)
	for _, s := range n.sources {
		if s.Type != Concen {
			continue
		}
		if v, ok := s.at(t); ok {
			n.C[s.species] = v
		}
	}
	d.boost(n, t)
}

// mixTank blends the water delivered to a tank with its contents and
// updates the tank volume.
func (d *PipeMSX) mixTank(n *Node) {
	t := n.tank
	ext := d.external(n)
	vin := n.inV + ext
	v := t.Volume + vin
	if v > 0 {
		for k := range t.C {
			if d.Mechanism.IsWall(k) {
				continue
			}
			m := t.Volume*t.C[k] + n.inMass[k] + ext*d.concen(n, k) + d.massRate(n, k)*d.Dt
			t.C[k] = m / v
		}
	}
	if !math.IsNaN(t.hydVolume) {
		t.Volume = t.hydVolume
	} else {
		// Continuity: inflow less the water drawn by outgoing pipes and
		// demand.
		out := math.Max(n.demand, 0) * d.Dt
		for _, p := range d.Network.PipesAt(n) {
			if p.upstream() == n && p.flow != 0 {
				out += math.Abs(p.flow) * d.Dt
			}
		}
		t.Volume = math.Max(v-out, 0)
	}
	for k := range n.C {
		if d.Mechanism.IsWall(k) {
			n.C[k] = 0
			continue
		}
		n.C[k] = t.C[k]
	}
}

// boost applies SETPOINT and FLOWPACED sources active at time t to the
// water leaving node n.
func (d *PipeMSX) boost(n *Node, t float64) {
	for _, s := range n.sources {
		v, ok := s.at(t)
		if !ok {
			continue
		}
		switch s.Type {
		case Setpoint:
			n.C[s.species] = math.Max(n.C[s.species], v)
		case FlowPaced:
			n.C[s.species] += v
		}
	}
}
