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
)

// FlowField supplies the hydraulic state of the network, computed
// beforehand by a hydraulic solver.
type FlowField interface {
	// Hydraulics returns the hydraulic state in effect at time t
	// (seconds since the start of the simulation).
	Hydraulics(t float64) (*HydraulicStep, error)
}

// HydraulicStep is the hydraulic state of the network over one period.
// Pipes, nodes and tanks that are missing from the maps have zero flow,
// zero demand, and an unknown volume.
type HydraulicStep struct {
	// Flows are pipe flow rates [volume/s], positive from the pipe's
	// From node to its To node.
	Flows map[string]float64 `yaml:"flows"`

	// Demands are node withdrawals [volume/s]. Negative demands are
	// external inflows.
	Demands map[string]float64 `yaml:"demands"`

	// TankVolumes are the tank volumes at the end of the period.
	TankVolumes map[string]float64 `yaml:"tank_volumes"`

	// Friction holds optional Darcy-Weisbach friction factors by pipe.
	Friction map[string]float64 `yaml:"friction"`
}

// HydraulicSeries is a FlowField made of periods of equal length. The
// last period is held for the rest of the simulation.
type HydraulicSeries struct {
	// Timestep is the length of each period [s].
	Timestep float64         `yaml:"timestep"`
	Steps    []HydraulicStep `yaml:"steps"`
}

// Hydraulics implements FlowField.
func (h *HydraulicSeries) Hydraulics(t float64) (*HydraulicStep, error) {
	if len(h.Steps) == 0 {
		return nil, fmt.Errorf("pipemsx: hydraulic series has no steps")
	}
	i := 0
	if h.Timestep > 0 {
		// Allow for round-off in accumulated time.
		i = int(math.Floor(t/h.Timestep + 1e-9))
	}
	if i < 0 {
		i = 0
	}
	if i >= len(h.Steps) {
		i = len(h.Steps) - 1
	}
	return &h.Steps[i], nil
}

// SteadyFlow returns a FlowField with constant pipe flows and no
// demands.
func SteadyFlow(flows map[string]float64) FlowField {
	return &HydraulicSeries{Steps: []HydraulicStep{{Flows: flows}}}
}

// SetHydraulics returns a function that loads the hydraulic state for
// the current timestep into the network elements.
func SetHydraulics() DomainManipulator {
	return func(d *PipeMSX) error {
		h, err := d.Hydraulics.Hydraulics(d.Time)
		if err != nil {
			return fmt.Errorf("pipemsx: hydraulics at t=%gs: %w", d.Time, err)
		}
		for _, p := range d.Network.Pipes {
			q := h.Flows[p.Name]
			if math.IsNaN(q) || math.IsInf(q, 0) {
				return fmt.Errorf("pipemsx: invalid flow %g in pipe %s at t=%gs", q, p.Name, d.Time)
			}
			p.flow = q
			p.env = Environment{
				Location:   InPipe,
				Element:    p.Name,
				Step:       d.Step + 1,
				Time:       d.Time,
				Hydraulics: pipeHydraulics(p, q, h.Friction[p.Name], d.Options.Viscosity),
			}
		}
		for _, n := range d.Network.Nodes {
			n.demand = h.Demands[n.Name]
		}
		for _, t := range d.Network.Tanks() {
			t.env = Environment{Location: InTank, Element: t.ID(), Step: d.Step + 1, Time: d.Time}
			t.hydVolume = math.NaN()
			if v, ok := h.TankVolumes[t.ID()]; ok {
				t.hydVolume = v
			}
		}
		return nil
	}
}
