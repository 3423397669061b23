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
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spatialmodel/pipemsx/internal/hash"
)

// ElementKind is the kind of network element a result series belongs to.
type ElementKind int

const (
	NodeElement ElementKind = iota
	LinkElement
	TankElement
)

func (k ElementKind) String() string {
	switch k {
	case LinkElement:
		return "link"
	case TankElement:
		return "tank"
	}
	return "node"
}

// ParseElementKind parses the name of an ElementKind.
func ParseElementKind(s string) (ElementKind, error) {
	switch strings.ToLower(s) {
	case "node":
		return NodeElement, nil
	case "link", "pipe":
		return LinkElement, nil
	case "tank":
		return TankElement, nil
	}
	return NodeElement, fmt.Errorf("pipemsx: invalid element kind %q", s)
}

// ReportSelection chooses which results are kept. Empty lists select
// everything.
type ReportSelection struct {
	Species []string `yaml:"species"`
	Nodes   []string `yaml:"nodes"`
	Links   []string `yaml:"links"`
}

func selected(list []string, name string) bool {
	if len(list) == 0 {
		return true
	}
	for _, s := range list {
		if s == name {
			return true
		}
	}
	return false
}

// Series is the concentration history of one species in one network
// element. Values[i] is the concentration at Results.Times[i].
type Series struct {
	Kind    ElementKind
	Element string
	Species string
	Units   string
	Values  []float64

	// Invalid is set if reactions in the element failed. Values from
	// InvalidFrom onward are not reliable.
	Invalid     bool
	InvalidFrom float64
}

type seriesKey struct {
	Kind             ElementKind
	Element, Species string
}

// Results holds the reported concentration series of a simulation.
// Results are only ever appended one whole timestep at a time.
type Results struct {
	RunID    uuid.UUID
	Species  []string
	Times    []float64
	Series   []*Series
	Failures []*NumericalFailure

	mu    sync.RWMutex
	index map[seriesKey]*Series
}

func (r *Results) add(s *Series) {
	r.Series = append(r.Series, s)
	r.index[seriesKey{s.Kind, s.Element, s.Species}] = s
}

func (r *Results) reindex() {
	r.index = make(map[seriesKey]*Series, len(r.Series))
	for _, s := range r.Series {
		r.index[seriesKey{s.Kind, s.Element, s.Species}] = s
	}
}

// commit appends the values for time t, in the order of r.Series, and
// records failures.
func (r *Results) commit(t float64, values []float64, failures []*NumericalFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Times = append(r.Times, t)
	for i, s := range r.Series {
		s.Values = append(s.Values, values[i])
	}
	for _, f := range failures {
		r.Failures = append(r.Failures, f)
		for _, s := range r.Series {
			if s.Element == f.Element && s.Kind == f.Kind && !s.Invalid {
				s.Invalid = true
				s.InvalidFrom = f.Time
			}
		}
	}
}

// Len returns the number of committed timesteps.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Times)
}

// Get returns the times and values of the given series between from and
// to, inclusive.
func (r *Results) Get(kind ElementKind, element, species string, from, to float64) (times, values []float64, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.index[seriesKey{kind, element, species}]
	if !ok {
		return nil, nil, fmt.Errorf("pipemsx: no results for species %s in %s %s", species, kind, element)
	}
	lo := sort.SearchFloat64s(r.Times, from)
	hi := sort.Search(len(r.Times), func(i int) bool { return r.Times[i] > to })
	if lo > hi {
		lo = hi
	}
	times = append([]float64(nil), r.Times[lo:hi]...)
	values = append([]float64(nil), s.Values[lo:hi]...)
	return times, values, nil
}

// Value returns the value of the given series at the last committed
// time at or before t.
func (r *Results) Value(kind ElementKind, element, species string, t float64) (float64, error) {
	times, values, err := r.Get(kind, element, species, math.Inf(-1), t)
	if err != nil {
		return math.NaN(), err
	}
	if len(times) == 0 {
		return math.NaN(), fmt.Errorf("pipemsx: no results for %s %s before t=%gs", kind, element, t)
	}
	return values[len(values)-1], nil
}

// Valid returns whether results for the element are valid at time t.
func (r *Results) Valid(kind ElementKind, element string, t float64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.Failures {
		if f.Kind == kind && f.Element == element && t >= f.Time {
			return false
		}
	}
	return true
}

// Digest returns a hash of the committed results. Two runs with
// identical inputs have identical digests.
func (r *Results) Digest() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type digest struct {
		Species  []string
		Times    []float64
		Series   []*Series
		Failures []string
	}
	dg := digest{Species: r.Species, Times: r.Times, Series: r.Series}
	for _, f := range r.Failures {
		dg.Failures = append(dg.Failures, f.Error())
	}
	return hash.Hash(dg)
}

// Record returns a function that commits the current concentrations and
// any numerical failures from the current timestep to d.Results.
func Record() DomainManipulator {
	return func(d *PipeMSX) error {
		r := d.Results
		if r.index == nil {
			d.setupResults()
		}
		values := make([]float64, len(r.Series))
		avg := make(map[*Pipe][]float64)
		for i, s := range r.Series {
			k, _ := d.Mechanism.Index(s.Species)
			switch s.Kind {
			case NodeElement:
				values[i] = d.Network.Node(s.Element).C[k]
			case TankElement:
				values[i] = d.Network.Node(s.Element).Tank().C[k]
			case LinkElement:
				p := d.Network.Pipe(s.Element)
				c, ok := avg[p]
				if !ok {
					c = make([]float64, d.Mechanism.Len())
					p.segs.average(c)
					avg[p] = c
				}
				values[i] = c[k]
			}
		}
		r.commit(d.Time, values, d.pending)
		d.pending = d.pending[:0]
		return nil
	}
}

// setupResults creates a series for each reported species in each
// reported element. Wall species are only reported for links.
func (d *PipeMSX) setupResults() {
	r := d.Results
	r.RunID = d.RunID
	r.Species = nil
	m := d.Mechanism
	r.index = make(map[seriesKey]*Series)
	for _, sp := range m.Species() {
		if selected(d.Report.Species, sp) {
			r.Species = append(r.Species, sp)
		}
	}
	for _, n := range d.Network.Nodes {
		if !selected(d.Report.Nodes, n.Name) {
			continue
		}
		for _, sp := range r.Species {
			i, _ := m.Index(sp)
			if m.IsWall(i) {
				continue
			}
			units, _ := m.Units(sp)
			r.add(&Series{Kind: NodeElement, Element: n.Name, Species: sp, Units: units})
			if n.Tank() != nil {
				r.add(&Series{Kind: TankElement, Element: n.Name, Species: sp, Units: units})
			}
		}
	}
	for _, p := range d.Network.Pipes {
		if !selected(d.Report.Links, p.Name) {
			continue
		}
		for _, sp := range r.Species {
			units, _ := m.Units(sp)
			r.add(&Series{Kind: LinkElement, Element: p.Name, Species: sp, Units: units})
		}
	}
}
