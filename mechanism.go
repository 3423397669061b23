/*
Copyright © 2017 the PipeMSX authors.
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

// Mechanism is an interface for multi-species water quality reaction
// models.
type Mechanism interface {
	// Species returns the names of the chemical species, in the order
	// in which concentrations are stored.
	Species() []string

	// Len returns the number of species in the mechanism.
	Len() int

	// Index returns the storage position of the named species.
	Index(species string) (int, bool)

	// Units returns the units of the given species, or an
	// error if the species name is invalid.
	Units(species string) (string, error)

	// IsWall returns whether species i is attached to the pipe wall
	// rather than carried with the water.
	IsWall(i int) bool

	// Tolerances returns the absolute and relative tolerances for
	// species i.
	Tolerances(i int) (atol, rtol float64)

	// Chemistry returns a function that simulates chemical reactions
	// at the given kind of location.
	Chemistry(loc Location) Reactor
}

// Location is the kind of place where reactions happen.
type Location int

const (
	// InPipe is a pipe segment.
	InPipe Location = iota
	// InTank is the contents of a storage tank.
	InTank
)

func (l Location) String() string {
	if l == InTank {
		return "tank"
	}
	return "pipe"
}

// Reactor advances the concentrations c of one pipe segment or tank
// through Δt seconds of reaction, in place. When Δt is zero it only
// resolves equilibrium and formula species for the current values.
// A Reactor must be safe for concurrent use.
type Reactor func(env *Environment, c []float64, Δt float64) (ReactionStats, error)

// ReactionStats counts the integration work done by a Reactor.
type ReactionStats struct {
	Accepted, Rejected, Evaluations int
}

// Add adds s2 to s.
func (s *ReactionStats) Add(s2 ReactionStats) {
	s.Accepted += s2.Accepted
	s.Rejected += s2.Rejected
	s.Evaluations += s2.Evaluations
}
