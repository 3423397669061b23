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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// segment is a slug of uniformly mixed water in a pipe.
type segment struct {
	v float64   // volume
	c []float64 // concentration of each species
}

// segments holds the contents of a pipe. Segment records live in an
// arena and are reused; order lists them from the pipe's From end to
// its To end.
type segments struct {
	arena []segment
	free  []int
	order segmentList
}

// alloc returns the arena index of an unused segment with volume v and
// a copy of concentrations c.
func (s *segments) alloc(v float64, c []float64) int {
	var i int
	if n := len(s.free); n > 0 {
		i = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.arena = append(s.arena, segment{})
		i = len(s.arena) - 1
	}
	sg := &s.arena[i]
	sg.v = v
	if cap(sg.c) < len(c) {
		sg.c = make([]float64, len(c))
	}
	sg.c = sg.c[:len(c)]
	copy(sg.c, c)
	return i
}

func (s *segments) release(i int) {
	s.arena[i].v = 0
	s.free = append(s.free, i)
}

// get returns the segment at position i of the ordered list.
func (s *segments) get(i int) *segment { return &s.arena[s.order.at(i)] }

func (s *segments) len() int { return s.order.len() }

// reset empties the pipe and fills it with a single segment.
func (s *segments) reset(v float64, c []float64) {
	s.arena = s.arena[:0]
	s.free = s.free[:0]
	s.order = s.order[:0]
	s.order.pushBack(s.alloc(v, c))
}

// volume returns the total volume of the segments.
func (s *segments) volume() float64 {
	var v float64
	for i := 0; i < s.len(); i++ {
		v += s.get(i).v
	}
	return v
}

// mass returns the total amount of species k in the segments.
func (s *segments) mass(k int) float64 {
	var m float64
	for i := 0; i < s.len(); i++ {
		sg := s.get(i)
		m += sg.v * sg.c[k]
	}
	return m
}

// average returns the volume-weighted average concentration of each
// species in the segments.
func (s *segments) average(dst []float64) {
	for k := range dst {
		dst[k] = 0
	}
	v := s.volume()
	if v <= 0 {
		return
	}
	for i := 0; i < s.len(); i++ {
		sg := s.get(i)
		floats.AddScaled(dst, sg.v/v, sg.c)
	}
}

// The upstream end of a pipe is its From end when flow is positive
// and its To end otherwise.

func (s *segments) upstream(forward bool) *segment {
	if s.len() == 0 {
		return nil
	}
	if forward {
		return s.get(0)
	}
	return s.get(s.len() - 1)
}

func (s *segments) downstream(forward bool) *segment {
	if s.len() == 0 {
		return nil
	}
	if forward {
		return s.get(s.len() - 1)
	}
	return s.get(0)
}

func (s *segments) pushUpstream(forward bool, i int) {
	if forward {
		s.order.pushFront(i)
	} else {
		s.order.pushBack(i)
	}
}

func (s *segments) popDownstream(forward bool) {
	if forward {
		s.release(s.order.popBack())
	} else {
		s.release(s.order.popFront())
	}
}

// mergeInto combines segment b into segment a, weighting
// concentrations by volume.
func mergeInto(a, b *segment) {
	v := a.v + b.v
	if v <= 0 {
		return
	}
	for k := range a.c {
		a.c[k] = (a.v*a.c[k] + b.v*b.c[k]) / v
	}
	a.v = v
}

// tolerance gives the merge tolerances for each species.
type tolerance struct {
	atol, rtol []float64
}

// similar returns whether concentrations a and b are within tolerance for
// all species k for which use(k) is true.
func (t tolerance) similar(a, b []float64, use func(k int) bool) bool {
	for k := range a {
		if use != nil && !use(k) {
			continue
		}
		if !scalar.EqualWithinAbsOrRel(a[k], b[k], t.atol[k], t.rtol[k]) {
			return false
		}
	}
	return true
}

// distance is the largest difference between a and b relative to the
// tolerance.
func (t tolerance) distance(a, b []float64) float64 {
	var d float64
	for k := range a {
		scale := t.atol[k] + t.rtol[k]*math.Max(math.Abs(a[k]), math.Abs(b[k]))
		diff := math.Abs(a[k] - b[k])
		if scale > 0 {
			diff /= scale
		}
		d = math.Max(d, diff)
	}
	return d
}

// mergeSimilar merges each pair of adjacent segments whose
// concentrations are within tolerance.
func (s *segments) mergeSimilar(tol tolerance) {
	for i := 0; i+1 < s.len(); {
		a, b := s.get(i), s.get(i+1)
		if tol.similar(a.c, b.c, nil) {
			mergeInto(a, b)
			s.release(s.order.delete(i + 1))
			continue
		}
		i++
	}
}

// limit merges the most similar adjacent segments until there are no
// more than max segments.
func (s *segments) limit(max int, tol tolerance) {
	if max < 1 {
		max = 1
	}
	for s.len() > max {
		best, bestD := 0, math.Inf(1)
		for i := 0; i+1 < s.len(); i++ {
			if d := tol.distance(s.get(i).c, s.get(i+1).c); d < bestD {
				best, bestD = i, d
			}
		}
		mergeInto(s.get(best), s.get(best+1))
		s.release(s.order.delete(best + 1))
	}
}

// wallProfile records the wall species concentrations along a pipe, by
// cumulative volume from the From end.
type wallProfile struct {
	bounds []float64   // segment end positions
	c      [][]float64 // wall concentrations in each segment
}

// profile records the current wall species profile.
func (s *segments) profile(wall []int, p *wallProfile) {
	p.bounds = p.bounds[:0]
	p.c = p.c[:0]
	var x float64
	for i := 0; i < s.len(); i++ {
		sg := s.get(i)
		x += sg.v
		w := make([]float64, len(wall))
		for j, k := range wall {
			w[j] = sg.c[k]
		}
		p.bounds = append(p.bounds, x)
		p.c = append(p.c, w)
	}
}

// remap sets the wall species concentrations in each segment to the
// overlap-weighted average of the recorded profile, so that wall
// species stay where they are while the water moves.
func (s *segments) remap(wall []int, p *wallProfile) {
	if len(wall) == 0 || len(p.bounds) == 0 {
		return
	}
	var start float64
	j := 0
	var jstart float64
	for i := 0; i < s.len(); i++ {
		sg := s.get(i)
		end := start + sg.v
		if i == s.len()-1 {
			// Absorb round-off at the far end.
			end = math.Max(end, p.bounds[len(p.bounds)-1])
		}
		acc := make([]float64, len(wall))
		var covered float64
		for j < len(p.bounds) {
			lo := math.Max(start, jstart)
			hi := math.Min(end, p.bounds[j])
			if hi > lo {
				floats.AddScaled(acc, hi-lo, p.c[j])
				covered += hi - lo
			}
			if p.bounds[j] > end {
				break
			}
			jstart = p.bounds[j]
			j++
		}
		if covered > 0 {
			for n, k := range wall {
				sg.c[k] = acc[n] / covered
			}
		}
		start = end
	}
}
