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

// React returns a function that integrates the reactions in each
// segment of a pipe, or in the contents of a tank, over the timestep.
// Elements whose reactions have previously failed are skipped. If the
// reactions in an element fail the concentrations of the failed segment
// are left as they were and a *NumericalFailure is returned.
func React(m Mechanism) ElementManipulator {
	pipeChem := m.Chemistry(InPipe)
	tankChem := m.Chemistry(InTank)
	return func(e Element, Δt float64) error {
		switch el := e.(type) {
		case *Pipe:
			el.stats = ReactionStats{}
			if el.invalid() {
				return nil
			}
			backup := make([]float64, m.Len())
			for i := 0; i < el.segs.len(); i++ {
				c := el.segs.get(i).c
				copy(backup, c)
				st, err := pipeChem(&el.env, c, Δt)
				el.stats.Add(st)
				if err != nil {
					copy(c, backup)
					return &NumericalFailure{Kind: LinkElement, Element: el.Name,
						Step: el.env.Step, Time: el.env.Time, Err: err}
				}
			}
		case *Tank:
			el.stats = ReactionStats{}
			if el.invalid() || el.Volume <= 0 {
				return nil
			}
			backup := append([]float64(nil), el.C...)
			st, err := tankChem(&el.env, el.C, Δt)
			el.stats = st
			if err != nil {
				copy(el.C, backup)
				return &NumericalFailure{Kind: TankElement, Element: el.ID(),
					Step: el.env.Step, Time: el.env.Time, Err: err}
			}
		}
		return nil
	}
}

func (p *Pipe) invalid() bool { return p.invalidFrom >= 0 }

func (t *Tank) invalid() bool { return t.invalidFrom >= 0 }

// Equilibrate returns a function that resolves the equilibrium and
// formula species in every pipe segment and tank for the current
// concentrations, without advancing time.
func Equilibrate() DomainManipulator {
	return func(d *PipeMSX) error {
		if err := SetHydraulics()(d); err != nil {
			return err
		}
		react := React(d.Mechanism)
		return Calculations(func(e Element, _ float64) error {
			return react(e, 0)
		})(d)
	}
}
