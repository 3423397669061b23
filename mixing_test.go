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
	"testing"
)

// teeNetwork has two reservoirs feeding junction J through pipes P1 and
// P2. J2 hangs off J through P3, which has no flow.
func teeNetwork() *Network {
	return &Network{
		Nodes: []*Node{
			{Name: "R1", Kind: Reservoir},
			{Name: "R2", Kind: Reservoir},
			{Name: "J"},
			{Name: "J2"},
		},
		Pipes: []*Pipe{
			{Name: "P1", From: "R1", To: "J", Volume: 10},
			{Name: "P2", From: "R2", To: "J", Volume: 10},
			{Name: "P3", From: "J", To: "J2", Volume: 10},
		},
	}
}

func runTee(t *testing.T, demand float64, sources ...*Source) *PipeMSX {
	h := &HydraulicSeries{Steps: []HydraulicStep{{
		Flows:   map[string]float64{"P1": 1, "P2": 3},
		Demands: map[string]float64{"J": demand},
	}}}
	q := &Quality{
		Nodes: map[string]map[string]float64{"R1": {"A": 1}, "R2": {"A": 3}, "J2": {"A": 7}},
		Links: map[string]map[string]float64{"P1": {"A": 1}, "P2": {"A": 3}},
	}
	o := DefaultOptions()
	o.Timestep = 2
	o.Duration = 2
	d := NewSimulation(teeNetwork(), newTestMech("A"), h, q, sources, ReportSelection{}, o)
	d.Log = quietLogger()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestMixing(t *testing.T) {
	for _, test := range []struct {
		name   string
		demand float64
		src    []*Source
		want   float64
	}{
		{name: "flow weighted", want: (2*1 + 6*3) / 8.},
		{name: "setpoint", src: []*Source{{Node: "J", Species: "A", Type: Setpoint, Strength: 4}}, want: 4},
		{name: "setpoint below", src: []*Source{{Node: "J", Species: "A", Type: Setpoint, Strength: 1}}, want: 2.5},
		{name: "flow paced", src: []*Source{{Node: "J", Species: "A", Type: FlowPaced, Strength: 0.5}}, want: 3},
		{name: "mass", src: []*Source{{Node: "J", Species: "A", Type: Mass, Strength: 8}}, want: 2.5 + 16./8},
		{name: "external inflow", demand: -1, want: 20. / 10},
		{name: "concen", demand: -1, src: []*Source{{Node: "J", Species: "A", Type: Concen, Strength: 5}}, want: (20. + 10) / 10},
		{name: "inactive window", src: []*Source{{Node: "J", Species: "A", Type: Setpoint, Strength: 4,
			Pattern: Window{Start: 100}}}, want: 2.5},
		{name: "pattern", src: []*Source{{Node: "J", Species: "A", Type: FlowPaced, Strength: 1,
			Pattern: Pattern{Step: 1, Multipliers: []float64{0.25, 2}}}}, want: 2.75},
	} {
		t.Run(test.name, func(t *testing.T) {
			d := runTee(t, test.demand, test.src...)
			have, err := d.Results.Value(NodeElement, "J", "A", 2)
			if err != nil {
				t.Fatal(err)
			}
			if absDifferent(have, test.want, 1e-12) {
				t.Errorf("have %g, want %g", have, test.want)
			}
		})
	}
}

func TestMixingNoInflow(t *testing.T) {
	d := runTee(t, 0)
	// J2 receives nothing, so it keeps its initial concentration.
	_, have, err := d.Results.Get(NodeElement, "J2", "A", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range have {
		if v != 7 {
			t.Errorf("step %d: have %g, want 7", i, v)
		}
	}
	// Reservoirs hold their boundary concentration.
	if v, _ := d.Results.Value(NodeElement, "R2", "A", 2); v != 3 {
		t.Errorf("reservoir: have %g, want 3", v)
	}
}

func TestTankMixing(t *testing.T) {
	net := &Network{
		Nodes: []*Node{
			{Name: "R", Kind: Reservoir},
			{Name: "T", Kind: TankNode, InitialVolume: 20},
		},
		Pipes: []*Pipe{{Name: "P1", From: "R", To: "T", Volume: 5}},
	}
	q := &Quality{
		Nodes: map[string]map[string]float64{"R": {"A": 4}, "T": {"A": 1}},
		Links: map[string]map[string]float64{"P1": {"A": 4}},
	}
	o := DefaultOptions()
	o.Timestep = 5
	o.Duration = 10
	h := &HydraulicSeries{Timestep: 5, Steps: []HydraulicStep{
		{Flows: map[string]float64{"P1": 1}, TankVolumes: map[string]float64{"T": 25}},
		{Flows: map[string]float64{"P1": 1}},
	}}
	d := NewSimulation(net, newTestMech("A"), h, q, nil, ReportSelection{}, o)
	d.Log = quietLogger()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Step 1: (20*1 + 5*4)/25 = 1.6. Step 2: (25*1.6 + 5*4)/30 = 2.
	_, have, err := d.Results.Get(TankElement, "T", "A", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 1.6, 2}
	for i := range want {
		if absDifferent(have[i], want[i], 1e-12) {
			t.Errorf("step %d: have %g, want %g", i, have[i], want[i])
		}
	}
	if tv := d.Network.Node("T").Tank().Volume; absDifferent(tv, 30, 1e-12) {
		t.Errorf("tank volume: have %g, want 30", tv)
	}
	if v, _ := d.Results.Value(NodeElement, "T", "A", 10); absDifferent(v, 2, 1e-12) {
		t.Errorf("tank node: have %g, want 2", v)
	}
}

// Water entering a pipe from a reservoir carries the source strength of
// the timestep in which it enters.
func TestReservoirSource(t *testing.T) {
	net := &Network{
		Nodes: []*Node{
			{Name: "R", Kind: Reservoir},
			{Name: "J"},
		},
		Pipes: []*Pipe{{Name: "P", From: "R", To: "J", Volume: 10}},
	}
	src := &Source{Node: "R", Species: "A", Type: Concen, Strength: 1,
		Pattern: Pattern{Step: 10, Multipliers: []float64{1, 3}}}
	o := DefaultOptions()
	o.Timestep = 10
	o.Duration = 20
	d := NewSimulation(net, newTestMech("A"), SteadyFlow(map[string]float64{"P": 1}),
		&Quality{}, []*Source{src}, ReportSelection{}, o)
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
		time    float64
		want    float64
	}{
		{NodeElement, "R", 0, 1},
		{NodeElement, "R", 10, 3},
		{NodeElement, "R", 20, 1},
		{LinkElement, "P", 0, 0},
		{LinkElement, "P", 10, 1},
		{LinkElement, "P", 20, 3},
		{NodeElement, "J", 20, 1},
	} {
		have, err := d.Results.Value(test.kind, test.element, "A", test.time)
		if err != nil {
			t.Fatal(err)
		}
		if absDifferent(have, test.want, 1e-12) {
			t.Errorf("%s %s at t=%g: have %g, want %g", test.kind, test.element, test.time, have, test.want)
		}
	}
}
