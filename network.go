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

	"github.com/ctessum/geom"
)

// NodeKind is the type of a network node.
type NodeKind int

const (
	// Junction is a node with no storage.
	Junction NodeKind = iota
	// Reservoir is an infinite external source or sink with a fixed
	// boundary concentration.
	Reservoir
	// TankNode is a node with storage, modeled as a completely mixed
	// reactor.
	TankNode
)

func (k NodeKind) String() string {
	switch k {
	case Reservoir:
		return "reservoir"
	case TankNode:
		return "tank"
	}
	return "junction"
}

// ParseNodeKind parses the name of a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	switch strings.ToLower(s) {
	case "junction", "":
		return Junction, nil
	case "reservoir":
		return Reservoir, nil
	case "tank":
		return TankNode, nil
	}
	return Junction, fmt.Errorf("pipemsx: invalid node kind %q", s)
}

// Node is a network node.
type Node struct {
	Name        string
	Kind        NodeKind
	Coordinates geom.Point

	// InitialVolume is the initial volume of water stored in a tank node.
	InitialVolume float64

	// C holds the concentration of each species in the water leaving
	// the node.
	C []float64

	tank    *Tank
	sources []*Source

	// boundary is the concentration of a reservoir when no source is
	// active.
	boundary []float64

	// demand is the current withdrawal [volume/s]; negative values are
	// external inflows.
	demand float64

	// Quantities delivered by pipes during the current timestep.
	inV    float64
	inMass []float64
}

// Tank returns the storage tank at this node, or nil if it is not a
// tank node.
func (n *Node) Tank() *Tank { return n.tank }

// Pipe is a network link through which water moves in plug flow.
type Pipe struct {
	Name      string
	From, To  string
	Length    float64
	Diameter  float64
	Roughness float64

	// Volume is the volume of the pipe. If it is zero it is calculated
	// from Length and Diameter.
	Volume float64

	from, to *Node

	// flow is the current flow rate [volume/s], positive from From to To.
	flow float64
	env  Environment
	segs segments

	// Volume and species mass delivered to the downstream node during
	// the current timestep.
	outV    float64
	outMass []float64

	stats       ReactionStats
	invalidFrom float64
}

// ID returns the name of the pipe.
func (p *Pipe) ID() string { return p.Name }

// ElementKind returns LinkElement.
func (p *Pipe) ElementKind() ElementKind { return LinkElement }

// FromNode returns the node at the start of the pipe.
func (p *Pipe) FromNode() *Node { return p.from }

// ToNode returns the node at the end of the pipe.
func (p *Pipe) ToNode() *Node { return p.to }

// Flow returns the current flow rate.
func (p *Pipe) Flow() float64 { return p.flow }

// upstream returns the node the pipe currently draws water from.
func (p *Pipe) upstream() *Node {
	if p.flow < 0 {
		return p.to
	}
	return p.from
}

// downstream returns the node the pipe currently delivers water to.
func (p *Pipe) downstream() *Node {
	if p.flow < 0 {
		return p.from
	}
	return p.to
}

// Tank is a storage tank at a tank node. Its contents are completely
// mixed.
type Tank struct {
	node *Node

	// Volume is the current volume of stored water.
	Volume float64

	// C is the concentration of each species in the tank.
	C []float64

	env         Environment
	hydVolume   float64 // end-of-step volume from the hydraulics; NaN if not given
	stats       ReactionStats
	invalidFrom float64
}

// ID returns the name of the tank's node.
func (t *Tank) ID() string { return t.node.Name }

// ElementKind returns TankElement.
func (t *Tank) ElementKind() ElementKind { return TankElement }

// Node returns the node the tank is located at.
func (t *Tank) Node() *Node { return t.node }

// Element is a network element that holds reacting water: a *Pipe or
// a *Tank.
type Element interface {
	ID() string
	ElementKind() ElementKind
}

// Network is the topology and geometry of a pipe network.
type Network struct {
	Nodes []*Node
	Pipes []*Pipe

	tanks  []*Tank
	nodes  map[string]*Node
	pipes  map[string]*Pipe
	byNode map[*Node][]*Pipe
}

// Tanks returns the storage tanks in the network, in node order.
// It is only valid after Prepare.
func (n *Network) Tanks() []*Tank { return n.tanks }

// Node returns the named node, or nil if it does not exist.
func (n *Network) Node(name string) *Node { return n.nodes[name] }

// Pipe returns the named pipe, or nil if it does not exist.
func (n *Network) Pipe(name string) *Pipe { return n.pipes[name] }

// Prepare checks the network for consistency, links pipes to their
// nodes, creates tanks, and fills in missing pipe lengths (from node
// coordinates) and volumes (from lengths and diameters).
func (n *Network) Prepare() error {
	n.nodes = make(map[string]*Node, len(n.Nodes))
	n.pipes = make(map[string]*Pipe, len(n.Pipes))
	n.byNode = make(map[*Node][]*Pipe)
	n.tanks = nil
	for _, nd := range n.Nodes {
		if nd.Name == "" {
			return fmt.Errorf("pipemsx: node with no name")
		}
		if _, ok := n.nodes[nd.Name]; ok {
			return fmt.Errorf("pipemsx: duplicate node %s", nd.Name)
		}
		n.nodes[nd.Name] = nd
		nd.tank = nil
		if nd.Kind == TankNode {
			if nd.InitialVolume < 0 {
				return fmt.Errorf("pipemsx: tank %s has negative volume %g", nd.Name, nd.InitialVolume)
			}
			t := &Tank{node: nd, Volume: nd.InitialVolume}
			nd.tank = t
			n.tanks = append(n.tanks, t)
		}
	}
	for _, p := range n.Pipes {
		if p.Name == "" {
			return fmt.Errorf("pipemsx: pipe with no name")
		}
		if _, ok := n.pipes[p.Name]; ok {
			return fmt.Errorf("pipemsx: duplicate pipe %s", p.Name)
		}
		n.pipes[p.Name] = p
		var ok bool
		if p.from, ok = n.nodes[p.From]; !ok {
			return fmt.Errorf("pipemsx: pipe %s: start node %s does not exist", p.Name, p.From)
		}
		if p.to, ok = n.nodes[p.To]; !ok {
			return fmt.Errorf("pipemsx: pipe %s: end node %s does not exist", p.Name, p.To)
		}
		if p.from == p.to {
			return fmt.Errorf("pipemsx: pipe %s starts and ends at node %s", p.Name, p.From)
		}
		if p.Length <= 0 {
			p.Length = geom.LineString{p.from.Coordinates, p.to.Coordinates}.Length()
		}
		if p.Volume <= 0 {
			p.Volume = math.Pi * p.Diameter * p.Diameter / 4 * p.Length
		}
		if p.Volume <= 0 {
			return fmt.Errorf("pipemsx: pipe %s has zero volume; specify its volume, or its diameter and length", p.Name)
		}
		n.byNode[p.from] = append(n.byNode[p.from], p)
		n.byNode[p.to] = append(n.byNode[p.to], p)
	}
	return nil
}

// PipesAt returns the pipes connected to node nd.
func (n *Network) PipesAt(nd *Node) []*Pipe { return n.byNode[nd] }
