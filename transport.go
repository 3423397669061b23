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

// ElementManipulator is a class of functions that operate on a single
// pipe or tank over a timestep of Δt seconds.
type ElementManipulator func(e Element, Δt float64) error

// mergeTolerance returns the tolerances used to decide whether the
// contents of adjacent segments can be combined.
func mergeTolerance(m Mechanism, o *Options) tolerance {
	t := tolerance{atol: make([]float64, m.Len()), rtol: make([]float64, m.Len())}
	for i := range t.atol {
		t.atol[i], t.rtol[i] = m.Tolerances(i)
		if o.MergeATol > 0 {
			t.atol[i] = o.MergeATol
		}
		if o.MergeRTol > 0 {
			t.rtol[i] = o.MergeRTol
		}
	}
	return t
}

// Transport returns a function that moves the water in a pipe through
// one timestep of plug flow. Water leaving the downstream end is
// accumulated for mixing at the downstream node; water entering the
// upstream end has the concentration the upstream node had at the end
// of the previous timestep. Wall species do not move. Transport has no
// effect on tanks.
func Transport(m Mechanism, o *Options) ElementManipulator {
	var bulk, wall []int
	for i := 0; i < m.Len(); i++ {
		if m.IsWall(i) {
			wall = append(wall, i)
		} else {
			bulk = append(bulk, i)
		}
	}
	isBulk := func(k int) bool { return !m.IsWall(k) }
	tol := mergeTolerance(m, o)

	return func(e Element, Δt float64) error {
		p, ok := e.(*Pipe)
		if !ok {
			return nil
		}
		for k := range p.outMass {
			p.outMass[k] = 0
		}
		p.outV = 0

		v := math.Abs(p.flow) * Δt
		if v <= 0 {
			return nil
		}
		forward := p.flow >= 0
		cin := p.upstream().C
		s := &p.segs

		var massBefore []float64
		if o.CheckConservation {
			massBefore = make([]float64, m.Len())
			for _, k := range bulk {
				massBefore[k] = s.mass(k)
			}
		}

		var prof wallProfile
		s.profile(wall, &prof)

		deliver := func(vol float64, c []float64) {
			p.outV += vol
			for _, k := range bulk {
				p.outMass[k] += vol * c[k]
			}
		}

		snap := o.VolumeTol * p.Volume
		var vin, pass float64
		if v >= p.Volume-snap {
			// The whole pipe is flushed; the excess passes straight through.
			for s.len() > 0 {
				sg := s.downstream(forward)
				deliver(sg.v, sg.c)
				s.popDownstream(forward)
			}
			if v > p.Volume {
				pass = v - p.Volume
				deliver(pass, cin)
			}
			vin = p.Volume
		} else {
			remaining := v
			for remaining > 0 && s.len() > 0 {
				sg := s.downstream(forward)
				if sg.v <= remaining+snap {
					deliver(sg.v, sg.c)
					remaining -= sg.v
					vin += sg.v
					s.popDownstream(forward)
					continue
				}
				deliver(remaining, sg.c)
				sg.v -= remaining
				vin += remaining
				remaining = 0
			}
		}

		if up := s.upstream(forward); up != nil && tol.similar(up.c, cin, isBulk) {
			mergeInto(up, &segment{v: vin, c: cin})
		} else {
			i := s.alloc(vin, cin)
			s.pushUpstream(forward, i)
		}
		s.remap(wall, &prof)
		s.mergeSimilar(tol)
		s.limit(o.MaxSegments, tol)

		if o.CheckConservation {
			if err := p.checkVolume(o.VolumeTol); err != nil {
				return err
			}
			for _, k := range bulk {
				expected := massBefore[k] + (vin+pass)*cin[k]
				actual := s.mass(k) + p.outMass[k]
				if !withinTol(expected, actual, o.MassTol) {
					return &ConservationViolation{
						Kind:     LinkElement,
						Element:  p.Name,
						Step:     p.env.Step,
						Time:     p.env.Time,
						Quantity: m.Species()[k],
						Expected: expected,
						Actual:   actual,
					}
				}
			}
		}
		return nil
	}
}

// checkVolume returns a *ConservationViolation if the segment volumes
// of p do not add up to the pipe volume.
func (p *Pipe) checkVolume(rtol float64) error {
	v := p.segs.volume()
	if math.Abs(v-p.Volume) > rtol*p.Volume || math.IsNaN(v) {
		return &ConservationViolation{
			Kind:     LinkElement,
			Element:  p.Name,
			Step:     p.env.Step,
			Time:     p.env.Time,
			Quantity: "volume",
			Expected: p.Volume,
			Actual:   v,
		}
	}
	return nil
}

// withinTol returns whether a and b differ by no more than rtol
// relative to the larger of them, with a floor for values near zero.
func withinTol(a, b, rtol float64) bool {
	scale := math.Max(math.Max(math.Abs(a), math.Abs(b)), 1e-12)
	return math.Abs(a-b) <= rtol*scale
}
