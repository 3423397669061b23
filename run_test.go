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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var errTest = errors.New("step size too small")

func failingSim(failFast bool) (*PipeMSX, *testMech) {
	m := newTestMech("A")
	m.k[0] = 1e-3
	m.hook = func(env *Environment, Δt float64) error {
		if env.Element == "P2" && Δt > 0 && env.Time >= 4 {
			return errTest
		}
		return nil
	}
	o := DefaultOptions()
	o.Timestep = 4
	o.Duration = 16
	o.FailFast = failFast
	q := &Quality{Global: map[string]float64{"A": 1}}
	h := SteadyFlow(map[string]float64{"P1": 0.5, "P2": 0.5, "P3": 0.5, "P4": 0.1})
	d := NewSimulation(lineNetwork(), m, h, q, nil, ReportSelection{}, o)
	d.Log = quietLogger()
	return d, m
}

func TestNumericalFailure(t *testing.T) {
	d, _ := failingSim(false)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(d.Results.Failures) != 1 {
		t.Fatalf("have %d failures, want 1", len(d.Results.Failures))
	}
	f := d.Results.Failures[0]
	if f.Element != "P2" || f.Kind != LinkElement || f.Time != 4 || f.Step != 2 {
		t.Errorf("failure: %+v", f)
	}
	if !errors.Is(f, errTest) {
		t.Errorf("failure does not wrap the reactor error: %v", f)
	}
	if d.Results.Valid(LinkElement, "P2", 0) != true || d.Results.Valid(LinkElement, "P2", 8) {
		t.Error("P2 should be valid before t=4 and invalid after")
	}
	if !d.Results.Valid(LinkElement, "P1", 16) {
		t.Error("P1 should be valid")
	}
	for _, s := range d.Results.Series {
		if s.Element == "P2" && s.Kind == LinkElement {
			if !s.Invalid || s.InvalidFrom != 4 {
				t.Errorf("series %s %s: invalid=%v from %g", s.Element, s.Species, s.Invalid, s.InvalidFrom)
			}
		} else if s.Invalid {
			t.Errorf("series %s %s %s should be valid", s.Kind, s.Element, s.Species)
		}
	}
	if d.Results.Len() != 5 {
		t.Errorf("have %d times, want 5", d.Results.Len())
	}
}

func TestFailFast(t *testing.T) {
	d, _ := failingSim(true)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	err := d.Run(context.Background())
	var nf *NumericalFailure
	if !errors.As(err, &nf) {
		t.Fatalf("have error %v, want *NumericalFailure", err)
	}
	if nf.Element != "P2" || nf.Time != 4 {
		t.Errorf("failure: %v", nf)
	}
	// The failed step is not recorded.
	if d.Results.Len() != 2 {
		t.Errorf("have %d times, want 2", d.Results.Len())
	}
}

func TestCancel(t *testing.T) {
	d, m := failingSim(false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	m.hook = func(env *Environment, Δt float64) error {
		if env.Time >= 8 {
			once.Do(cancel)
		}
		return nil
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("have error %v, want context.Canceled", err)
	}
	// Steps starting at 0 and 4 are committed; the one starting at 8 is
	// not.
	if d.Results.Len() != 3 {
		t.Errorf("have %d times, want 3", d.Results.Len())
	}
	for _, s := range d.Results.Series {
		if len(s.Values) != 3 {
			t.Errorf("series %s %s has %d values", s.Element, s.Species, len(s.Values))
		}
	}
}

func steadySim() *PipeMSX {
	o := DefaultOptions()
	o.Timestep = 4
	o.Duration = 16
	q := &Quality{Global: map[string]float64{"A": 1}}
	h := SteadyFlow(map[string]float64{"P1": 0.5, "P2": 0.5, "P3": 0.5, "P4": 0.1})
	d := NewSimulation(lineNetwork(), newTestMech("A"), h, q, nil, ReportSelection{}, o)
	d.Log = quietLogger()
	return d
}

// insertBefore inserts f into d.RunFuncs ahead of the i'th function.
func insertBefore(d *PipeMSX, i int, f DomainManipulator) {
	d.RunFuncs = append(d.RunFuncs[:i], append([]DomainManipulator{f}, d.RunFuncs[i:]...)...)
}

func TestVolumeViolation(t *testing.T) {
	d := steadySim()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	var actual float64
	// Just ahead of CheckConservation.
	insertBefore(d, 5, func(d *PipeMSX) error {
		if d.Step == 1 {
			p := d.Network.Pipe("P3")
			p.segs.get(0).v += 1
			actual = p.segs.volume()
		}
		return nil
	})
	err := d.Run(context.Background())
	var cv *ConservationViolation
	if !errors.As(err, &cv) {
		t.Fatalf("have error %v, want *ConservationViolation", err)
	}
	if cv.Kind != LinkElement || cv.Element != "P3" || cv.Quantity != "volume" {
		t.Errorf("violation in %s %s %s", cv.Kind, cv.Element, cv.Quantity)
	}
	if cv.Step != 2 || cv.Time != 4 {
		t.Errorf("violation at step %d, t=%g; want step 2, t=4", cv.Step, cv.Time)
	}
	if cv.Expected != 3 || cv.Actual != actual {
		t.Errorf("expected %g, actual %g; want 3, %g", cv.Expected, cv.Actual, actual)
	}
	// The step is not recorded.
	if d.Results.Len() != 2 {
		t.Errorf("have %d times, want 2", d.Results.Len())
	}
}

func TestDeliveryViolation(t *testing.T) {
	d := steadySim()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	var delivered float64
	// Just ahead of Mix: P2 loses track of the water it delivered to J2
	// but not of the mass.
	insertBefore(d, 4, func(d *PipeMSX) error {
		if d.Step == 1 {
			p := d.Network.Pipe("P2")
			delivered = p.outMass[0]
			p.outV = 0
		}
		return nil
	})
	err := d.Run(context.Background())
	var cv *ConservationViolation
	if !errors.As(err, &cv) {
		t.Fatalf("have error %v, want *ConservationViolation", err)
	}
	if cv.Kind != NodeElement || cv.Element != "J2" || cv.Quantity != "A" {
		t.Errorf("violation in %s %s %s", cv.Kind, cv.Element, cv.Quantity)
	}
	if cv.Step != 2 || cv.Time != 4 {
		t.Errorf("violation at step %d, t=%g; want step 2, t=4", cv.Step, cv.Time)
	}
	if delivered != 2 || cv.Expected != delivered || cv.Actual != 0 {
		t.Errorf("expected %g, actual %g; want %g, 0", cv.Expected, cv.Actual, delivered)
	}
	if d.Results.Len() != 2 {
		t.Errorf("have %d times, want 2", d.Results.Len())
	}
}

func TestIdempotent(t *testing.T) {
	run := func() *Results {
		d, _ := failingSim(false)
		d.Options.Workers = 3
		if err := d.Init(); err != nil {
			t.Fatal(err)
		}
		if err := d.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
		return d.Results
	}
	r1, r2 := run(), run()
	if r1.Digest() != r2.Digest() {
		t.Errorf("digests differ: %s != %s", r1.Digest(), r2.Digest())
	}
	if r1.RunID == r2.RunID {
		t.Error("runs should have different IDs")
	}
}

func TestSaveLoad(t *testing.T) {
	d, _ := failingSim(false)
	buf := new(bytes.Buffer)
	d.CleanupFuncs = []DomainManipulator{Save(buf)}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Cleanup(); err != nil {
		t.Fatal(err)
	}
	r, err := Load(buf)
	if err != nil {
		t.Fatal(err)
	}
	if r.Digest() != d.Results.Digest() {
		t.Error("loaded results differ from saved results")
	}
	if r.RunID != d.RunID {
		t.Errorf("run ID: have %s, want %s", r.RunID, d.RunID)
	}
	want, _ := d.Results.Value(LinkElement, "P3", "A", 12)
	have, err := r.Value(LinkElement, "P3", "A", 12)
	if err != nil {
		t.Fatal(err)
	}
	if have != want {
		t.Errorf("have %g, want %g", have, want)
	}
}

func TestReportSelection(t *testing.T) {
	d, _ := failingSim(false)
	d.Report = ReportSelection{Nodes: []string{"J1"}, Links: []string{"P1", "P4"}}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if len(d.Results.Series) != 3 {
		t.Errorf("have %d series, want 3", len(d.Results.Series))
	}
	if _, _, err := d.Results.Get(NodeElement, "J2", "A", 0, 1); err == nil {
		t.Error("J2 should not be reported")
	}

	d, _ = failingSim(false)
	d.Report = ReportSelection{Species: []string{"X"}}
	if err := d.Init(); err == nil {
		t.Error("undefined report species should be an error")
	}
}

func TestMetrics(t *testing.T) {
	d, _ := failingSim(false)
	reg := prometheus.NewRegistry()
	var err error
	if d.Metrics, err = NewMetrics(reg); err != nil {
		t.Fatal(err)
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := testutil.ToFloat64(d.Metrics.Steps); n != 4 {
		t.Errorf("steps: have %g, want 4", n)
	}
	if n := testutil.ToFloat64(d.Metrics.Failures.WithLabelValues("link")); n != 1 {
		t.Errorf("failures: have %g, want 1", n)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("registering twice should fail")
	}
}
