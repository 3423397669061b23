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
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
)

// testMech is a Mechanism with first-order decay of each species.
type testMech struct {
	names []string
	wall  []bool
	k     []float64 // decay rates [1/s]

	// hook, if not nil, is called before each reaction.
	hook func(env *Environment, Δt float64) error
}

func newTestMech(names ...string) *testMech {
	return &testMech{
		names: names,
		wall:  make([]bool, len(names)),
		k:     make([]float64, len(names)),
	}
}

func (m *testMech) Species() []string { return m.names }
func (m *testMech) Len() int          { return len(m.names) }
func (m *testMech) Index(s string) (int, bool) {
	for i, n := range m.names {
		if n == s {
			return i, true
		}
	}
	return -1, false
}
func (m *testMech) Units(s string) (string, error) { return "mg/L", nil }
func (m *testMech) IsWall(i int) bool              { return m.wall[i] }
func (m *testMech) Tolerances(i int) (float64, float64) {
	return 1e-9, 1e-9
}
func (m *testMech) Chemistry(loc Location) Reactor {
	return func(env *Environment, c []float64, Δt float64) (ReactionStats, error) {
		if m.hook != nil {
			if err := m.hook(env, Δt); err != nil {
				return ReactionStats{}, err
			}
		}
		for i := range c {
			c[i] *= math.Exp(-m.k[i] * Δt)
		}
		return ReactionStats{Accepted: 1, Evaluations: 1}, nil
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

func absDifferent(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance || math.IsNaN(a) || math.IsNaN(b)
}

func TestTransportFlush(t *testing.T) {
	m := newTestMech("A")
	o := DefaultOptions()
	tr := Transport(m, &o)
	up := &Node{Name: "U", C: []float64{2}}
	dn := &Node{Name: "D", C: []float64{0}}
	p := &Pipe{Name: "P", Volume: 10, from: up, to: dn, flow: 5, outMass: make([]float64, 1)}
	p.segs.reset(10, []float64{1})

	if err := tr(p, 5); err != nil {
		t.Fatal(err)
	}
	if different(p.outV, 25, 1e-12) {
		t.Errorf("delivered volume: have %g, want 25", p.outV)
	}
	if different(p.outMass[0], 10*1+15*2, 1e-12) {
		t.Errorf("delivered mass: have %g, want 40", p.outMass[0])
	}
	if p.segs.len() != 1 || p.segs.get(0).c[0] != 2 || different(p.segs.get(0).v, 10, 1e-12) {
		t.Errorf("pipe contents after flush: %+v", p.segs.get(0))
	}
}

func TestTransportPartial(t *testing.T) {
	m := newTestMech("A")
	o := DefaultOptions()
	tr := Transport(m, &o)
	up := &Node{Name: "U", C: []float64{3}}
	dn := &Node{Name: "D", C: []float64{0}}
	p := &Pipe{Name: "P", Volume: 10, from: up, to: dn, flow: -1, outMass: make([]float64, 1)}
	p.segs.reset(10, []float64{1})

	// Negative flow: water enters at the To end.
	if err := tr(p, 4); err != nil {
		t.Fatal(err)
	}
	if p.segs.len() != 2 {
		t.Fatalf("have %d segments, want 2", p.segs.len())
	}
	first, last := p.segs.get(0), p.segs.get(1)
	if different(first.v, 6, 1e-12) || first.c[0] != 1 {
		t.Errorf("From-end segment: have %g@%g, want 6@1", first.v, first.c[0])
	}
	if different(last.v, 4, 1e-12) || last.c[0] != 0 {
		t.Errorf("To-end segment: have %g@%g, want 4@0", last.v, last.c[0])
	}
	if different(p.outMass[0], 4, 1e-12) {
		t.Errorf("delivered mass: have %g, want 4", p.outMass[0])
	}
}

func TestMaxSegments(t *testing.T) {
	m := newTestMech("A")
	o := DefaultOptions()
	o.MaxSegments = 3
	tr := Transport(m, &o)
	up := &Node{Name: "U", C: []float64{0}}
	dn := &Node{Name: "D", C: []float64{0}}
	p := &Pipe{Name: "P", Volume: 100, from: up, to: dn, flow: 1, outMass: make([]float64, 1)}
	p.segs.reset(100, []float64{0})
	for i := 1; i <= 10; i++ {
		up.C[0] = float64(i)
		if err := tr(p, 1); err != nil {
			t.Fatal(err)
		}
		if p.segs.len() > 3 {
			t.Fatalf("step %d: %d segments", i, p.segs.len())
		}
	}
	// Total mass in: 1+2+...+10 = 55.
	if different(p.segs.mass(0), 55, 1e-9) {
		t.Errorf("mass: have %g, want 55", p.segs.mass(0))
	}
	if different(p.segs.volume(), 100, 1e-12) {
		t.Errorf("volume: have %g, want 100", p.segs.volume())
	}
}

func TestWallSpeciesStay(t *testing.T) {
	m := newTestMech("A", "W")
	m.wall[1] = true
	o := DefaultOptions()
	tr := Transport(m, &o)
	up := &Node{Name: "U", C: []float64{1, 0}}
	dn := &Node{Name: "D", C: []float64{0, 0}}
	p := &Pipe{Name: "P", Volume: 10, from: up, to: dn, outMass: make([]float64, 2)}
	p.segs.reset(5, []float64{0, 2})
	p.segs.order.pushBack(p.segs.alloc(5, []float64{0, 4}))

	for i, q := range []float64{1, 1, -0.5, 3, -2} {
		p.flow = q
		up.C[0] = float64(i)
		if err := tr(p, 1.5); err != nil {
			t.Fatal(err)
		}
		if w := p.segs.mass(1); different(w, 5*2+5*4, 1e-12) {
			t.Errorf("step %d: wall mass %g, want 30", i, w)
		}
		if p.outMass[1] != 0 {
			t.Errorf("step %d: wall species delivered to node", i)
		}
	}
}

// lineNetwork returns R -> P1 -> J1 -> P2 -> J2 -> P3 -> J3 with a loop
// pipe P4 from J1 to J3.
func lineNetwork() *Network {
	return &Network{
		Nodes: []*Node{
			{Name: "R", Kind: Reservoir},
			{Name: "J1"},
			{Name: "J2"},
			{Name: "J3", Kind: TankNode, InitialVolume: 50},
		},
		Pipes: []*Pipe{
			{Name: "P1", From: "R", To: "J1", Volume: 10},
			{Name: "P2", From: "J1", To: "J2", Volume: 7.5},
			{Name: "P3", From: "J2", To: "J3", Volume: 3},
			{Name: "P4", From: "J1", To: "J3", Volume: 12, Diameter: 0.3, Length: 100},
		},
	}
}

func TestVolumeConservation(t *testing.T) {
	const nsteps = 60
	rnd := rand.New(rand.NewSource(1))
	h := &HydraulicSeries{Timestep: 3}
	for i := 0; i < nsteps; i++ {
		s := HydraulicStep{Flows: map[string]float64{}}
		for _, p := range []string{"P1", "P2", "P3", "P4"} {
			q := rnd.Float64()*4 - 2
			if rnd.Intn(5) == 0 {
				q = 0
			}
			s.Flows[p] = q
		}
		h.Steps = append(h.Steps, s)
	}
	m := newTestMech("A", "B", "W")
	m.wall[2] = true
	m.k[1] = 1e-3
	o := DefaultOptions()
	o.Timestep = 3
	o.Duration = 3 * nsteps
	o.MaxSegments = 6
	q := &Quality{
		Global: map[string]float64{"B": 1},
		Links:  map[string]map[string]float64{"P2": {"W": 3}, "P4": {"W": 1}},
	}
	src := []*Source{{Node: "R", Species: "A", Type: Concen, Strength: 1,
		Pattern: Pattern{Step: 3, Multipliers: []float64{1, 2, 3, 4, 5}}}}
	d := NewSimulation(lineNetwork(), m, h, q, src, ReportSelection{}, o)
	d.Log = quietLogger()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Step != nsteps {
		t.Errorf("ran %d steps, want %d", d.Step, nsteps)
	}
	for _, p := range d.Network.Pipes {
		if v := p.segs.volume(); absDifferent(v, p.Volume, 1e-9*p.Volume) {
			t.Errorf("pipe %s: segment volume %g != pipe volume %g", p.Name, v, p.Volume)
		}
		if p.segs.len() > o.MaxSegments {
			t.Errorf("pipe %s has %d segments", p.Name, p.segs.len())
		}
	}
	if w := d.Network.Pipe("P2").segs.mass(2); different(w, 3*7.5, 1e-9) {
		t.Errorf("P2 wall mass: have %g, want %g", w, 3*7.5)
	}
	if d.Results.Len() != nsteps+1 {
		t.Errorf("have %d result times, want %d", d.Results.Len(), nsteps+1)
	}
}

func TestPlugFlow(t *testing.T) {
	net := &Network{
		Nodes: []*Node{{Name: "R", Kind: Reservoir}, {Name: "J"}},
		Pipes: []*Pipe{{Name: "P1", From: "R", To: "J", Volume: 10}},
	}
	o := DefaultOptions()
	o.Timestep = 4
	o.Duration = 12
	q := &Quality{Nodes: map[string]map[string]float64{"R": {"A": 1}}}
	d := NewSimulation(net, newTestMech("A"), SteadyFlow(map[string]float64{"P1": 1}), q, nil, ReportSelection{}, o)
	d.Log = quietLogger()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	times, link, err := d.Results.Get(LinkElement, "P1", "A", 0, 12)
	if err != nil {
		t.Fatal(err)
	}
	_, node, err := d.Results.Get(NodeElement, "J", "A", 0, 12)
	if err != nil {
		t.Fatal(err)
	}
	wantTimes := []float64{0, 4, 8, 12}
	wantLink := []float64{0, 0.4, 0.8, 1}
	wantNode := []float64{0, 0, 0, 0.5}
	if len(times) != len(wantTimes) {
		t.Fatalf("times: have %v, want %v", times, wantTimes)
	}
	for i := range wantTimes {
		if times[i] != wantTimes[i] {
			t.Errorf("time %d: have %g, want %g", i, times[i], wantTimes[i])
		}
		if absDifferent(link[i], wantLink[i], 1e-12) {
			t.Errorf("link at t=%g: have %g, want %g", times[i], link[i], wantLink[i])
		}
		if absDifferent(node[i], wantNode[i], 1e-12) {
			t.Errorf("node at t=%g: have %g, want %g", times[i], node[i], wantNode[i])
		}
	}
}

func TestFlowReversal(t *testing.T) {
	net := &Network{
		Nodes: []*Node{{Name: "J1"}, {Name: "J2"}},
		Pipes: []*Pipe{{Name: "P1", From: "J1", To: "J2", Volume: 10}},
	}
	h := &HydraulicSeries{Timestep: 4, Steps: []HydraulicStep{
		{Flows: map[string]float64{"P1": 1}},
		{Flows: map[string]float64{"P1": -1}},
	}}
	o := DefaultOptions()
	o.Timestep = 4
	o.Duration = 8
	q := &Quality{Nodes: map[string]map[string]float64{"J1": {"A": 1}, "J2": {"A": 2}}}
	d := NewSimulation(net, newTestMech("A"), h, q, nil, ReportSelection{}, o)
	d.Log = quietLogger()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, test := range []struct {
		kind    ElementKind
		element string
		want    []float64
	}{
		{LinkElement, "P1", []float64{0, 0.4, 0}},
		{NodeElement, "J1", []float64{1, 1, 1}},
		{NodeElement, "J2", []float64{2, 0, 0}},
	} {
		t.Run(test.element, func(t *testing.T) {
			_, have, err := d.Results.Get(test.kind, test.element, "A", 0, 8)
			if err != nil {
				t.Fatal(err)
			}
			for i := range test.want {
				if absDifferent(have[i], test.want[i], 1e-12) {
					t.Errorf("step %d: have %g, want %g", i, have[i], test.want[i])
				}
			}
		})
	}
	p := d.Network.Pipe("P1")
	if p.segs.len() != 1 || absDifferent(p.segs.volume(), 10, 1e-12) {
		t.Errorf("pipe contents: %d segments, volume %g", p.segs.len(), p.segs.volume())
	}
}
