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
	"strings"
)

// SourceType specifies how an external source changes the water quality
// at a node.
type SourceType int

const (
	// Concen sets the concentration of external inflow to the node.
	Concen SourceType = iota
	// Mass adds mass to the water leaving the node at a fixed rate
	// [mass/s].
	Mass
	// Setpoint raises the concentration of the water leaving the node to
	// at least the source strength.
	Setpoint
	// FlowPaced adds the source strength to the concentration of the
	// water leaving the node.
	FlowPaced
)

func (s SourceType) String() string {
	switch s {
	case Mass:
		return "MASS"
	case Setpoint:
		return "SETPOINT"
	case FlowPaced:
		return "FLOWPACED"
	}
	return "CONCEN"
}

// ParseSourceType parses the name of a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch strings.ToUpper(s) {
	case "CONCEN", "CONCENTRATION", "":
		return Concen, nil
	case "MASS":
		return Mass, nil
	case "SETPOINT":
		return Setpoint, nil
	case "FLOWPACED":
		return FlowPaced, nil
	}
	return Concen, fmt.Errorf("pipemsx: invalid source type %q", s)
}

// Activation determines when a source is active.
type Activation interface {
	// Strength returns the multiplier applied to the source strength at
	// time t [s] and whether the source is active.
	Strength(t float64) (float64, bool)
}

// Always is an Activation that is always on.
type Always struct{}

// Strength implements Activation.
func (Always) Strength(float64) (float64, bool) { return 1, true }

// Window is an Activation that is on from Start (inclusive) to End
// (exclusive), in seconds. A zero End means there is no end.
type Window struct {
	Start, End float64
}

// Strength implements Activation.
func (w Window) Strength(t float64) (float64, bool) {
	if t < w.Start || (w.End > 0 && t >= w.End) {
		return 0, false
	}
	return 1, true
}

// Pattern is an Activation whose multiplier cycles through Multipliers,
// each held for Step seconds, starting at Start.
type Pattern struct {
	Start       float64
	Step        float64
	Multipliers []float64
}

// Strength implements Activation.
func (p Pattern) Strength(t float64) (float64, bool) {
	if t < p.Start || len(p.Multipliers) == 0 {
		return 0, false
	}
	if p.Step <= 0 {
		return p.Multipliers[0], true
	}
	i := int(math.Floor((t-p.Start)/p.Step+1e-9)) % len(p.Multipliers)
	return p.Multipliers[i], true
}

// Source is an external source of a species at a node.
type Source struct {
	Node     string
	Species  string
	Type     SourceType
	Strength float64

	// Pattern determines when the source is active. A nil Pattern means
	// always.
	Pattern Activation

	species int
}

// at returns the strength of the source at time t and whether it is
// active.
func (s *Source) at(t float64) (float64, bool) {
	if s.Pattern == nil {
		return s.Strength, true
	}
	m, ok := s.Pattern.Strength(t)
	return s.Strength * m, ok
}

// Quality holds initial concentrations. A species missing from Links or
// Nodes takes its value from Global, and otherwise starts at zero.
type Quality struct {
	Global map[string]float64            `yaml:"global"`
	Nodes  map[string]map[string]float64 `yaml:"nodes"`
	Links  map[string]map[string]float64 `yaml:"links"`
}

func (q *Quality) value(element map[string]map[string]float64, name, species string) float64 {
	if q == nil {
		return 0
	}
	if v, ok := element[name][species]; ok {
		return v
	}
	return q.Global[species]
}

// validate checks that all named species and elements exist.
func (q *Quality) validate(m Mechanism, n *Network) error {
	if q == nil {
		return nil
	}
	check := func(values map[string]float64, where string) error {
		for sp := range values {
			if _, ok := m.Index(sp); !ok {
				return fmt.Errorf("pipemsx: initial quality %s: undefined species %s", where, sp)
			}
		}
		return nil
	}
	if err := check(q.Global, "global"); err != nil {
		return err
	}
	for name, v := range q.Nodes {
		if n.Node(name) == nil {
			return fmt.Errorf("pipemsx: initial quality: undefined node %s", name)
		}
		if err := check(v, "node "+name); err != nil {
			return err
		}
	}
	for name, v := range q.Links {
		if n.Pipe(name) == nil {
			return fmt.Errorf("pipemsx: initial quality: undefined link %s", name)
		}
		if err := check(v, "link "+name); err != nil {
			return err
		}
	}
	return nil
}

// InitialQuality returns a function that sets the initial
// concentrations of the nodes, tanks, and pipe segments and attaches
// sources to their nodes. Wall species are zero at nodes.
func InitialQuality() DomainManipulator {
	return func(d *PipeMSX) error {
		if err := d.Quality.validate(d.Mechanism, d.Network); err != nil {
			return err
		}
		species := d.Mechanism.Species()
		for _, n := range d.Network.Nodes {
			for i, sp := range species {
				if d.Mechanism.IsWall(i) {
					continue
				}
				n.C[i] = d.Quality.value(d.Quality.nodes(), n.Name, sp)
			}
			n.boundary = append(n.boundary[:0], n.C...)
			n.sources = n.sources[:0]
			if t := n.Tank(); t != nil {
				copy(t.C, n.C)
			}
		}
		c := make([]float64, len(species))
		for _, p := range d.Network.Pipes {
			for i, sp := range species {
				c[i] = d.Quality.value(d.Quality.links(), p.Name, sp)
			}
			p.segs.reset(p.Volume, c)
		}
		for _, s := range d.Sources {
			n := d.Network.Node(s.Node)
			if n == nil {
				return fmt.Errorf("pipemsx: source: undefined node %s", s.Node)
			}
			i, ok := d.Mechanism.Index(s.Species)
			if !ok {
				return fmt.Errorf("pipemsx: source at node %s: undefined species %s", s.Node, s.Species)
			}
			if d.Mechanism.IsWall(i) {
				return fmt.Errorf("pipemsx: source at node %s: %s is a wall species", s.Node, s.Species)
			}
			s.species = i
			n.sources = append(n.sources, s)
		}
		return Boundaries()(d)
	}
}

func (q *Quality) nodes() map[string]map[string]float64 {
	if q == nil {
		return nil
	}
	return q.Nodes
}

func (q *Quality) links() map[string]map[string]float64 {
	if q == nil {
		return nil
	}
	return q.Links
}
