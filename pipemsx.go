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

// Package pipemsx simulates the transport and reaction of multiple
// interacting chemical species in water distribution networks.
package pipemsx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Version gives the version number.
const Version = "1.0.0"

// PipeMSX holds the current state of a water quality simulation.
type PipeMSX struct {
	// InitFuncs are functions to be called in the given order
	// at the beginning of the simulation.
	InitFuncs []DomainManipulator

	// RunFuncs are functions to be called in the given order repeatedly
	// until "Done" is true. Each call is one control timestep.
	RunFuncs []DomainManipulator

	// CleanupFuncs are functions to be called in the given order
	// after the simulation has completed.
	CleanupFuncs []DomainManipulator

	Network    *Network
	Mechanism  Mechanism
	Hydraulics FlowField
	Quality    *Quality
	Sources    []*Source
	Report     ReportSelection
	Options    Options

	// Results holds the reported concentrations.
	Results *Results

	// Log receives status messages. If nil, the standard logrus logger is
	// used.
	Log logrus.FieldLogger

	// Metrics, if not nil, receives simulation statistics.
	Metrics *Metrics

	RunID uuid.UUID

	Time float64 // seconds since the start of the simulation
	Step int     // number of completed timesteps
	Dt   float64 // timestep length [s]

	// Done specifies whether the simulation is finished.
	Done bool

	ctx       context.Context
	elements  []Element
	pending   []*NumericalFailure
	stepStart time.Time
}

// DomainManipulator is a class of functions that operate on the entire
// simulation.
type DomainManipulator func(d *PipeMSX) error

// Options holds numerical settings for the simulation.
type Options struct {
	// Timestep is the control timestep [s].
	Timestep float64

	// Duration is the length of the simulation [s].
	Duration float64

	// MaxSegments is the largest number of segments a pipe may hold.
	MaxSegments int

	// MergeATol and MergeRTol are the tolerances within which adjacent
	// segments are combined. Zero values use each species' solver
	// tolerances.
	MergeATol, MergeRTol float64

	// FailFast stops the simulation at the first numerical failure.
	FailFast bool

	// Workers is the number of concurrent workers. Zero uses
	// GOMAXPROCS.
	Workers int

	// Viscosity is the kinematic viscosity of water [m²/s], used to
	// calculate Reynolds numbers.
	Viscosity float64

	// VolumeTol is the allowed difference between the sum of segment
	// volumes and the pipe volume, relative to the pipe volume.
	VolumeTol float64

	// MassTol is the allowed relative imbalance in transport and mixing
	// mass balances.
	MassTol float64

	// CheckConservation turns on volume and mass balance checks.
	CheckConservation bool
}

// DefaultOptions returns the default simulation options.
func DefaultOptions() Options {
	return Options{
		Timestep:          360,
		Duration:          360,
		MaxSegments:       5000,
		Viscosity:         1.1e-6,
		VolumeTol:         1e-9,
		MassTol:           1e-6,
		CheckConservation: true,
	}
}

func (o *Options) check() error {
	switch {
	case o.Timestep <= 0:
		return fmt.Errorf("pipemsx: timestep must be > 0, got %g", o.Timestep)
	case o.Duration < 0:
		return fmt.Errorf("pipemsx: duration must be >= 0, got %g", o.Duration)
	case o.MaxSegments < 1:
		return fmt.Errorf("pipemsx: maximum segments must be >= 1, got %d", o.MaxSegments)
	case o.Workers < 0:
		return fmt.Errorf("pipemsx: workers must be >= 0, got %d", o.Workers)
	case o.VolumeTol <= 0 || o.MassTol <= 0:
		return fmt.Errorf("pipemsx: conservation tolerances must be > 0")
	}
	return nil
}

// Init initializes the simulation by running d.InitFuncs.
func (d *PipeMSX) Init() error {
	if d.ctx == nil {
		d.ctx = context.Background()
	}
	for _, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// Run carries out the simulation by running d.RunFuncs until d.Done is
// true. If ctx is cancelled the simulation stops with ctx.Err(), and
// the timestep in progress is not recorded.
func (d *PipeMSX) Run(ctx context.Context) error {
	d.ctx = ctx
	defer func() { d.ctx = context.Background() }()
	for !d.Done {
		d.stepStart = time.Now()
		for _, f := range d.RunFuncs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup finishes the simulation by running d.CleanupFuncs.
func (d *PipeMSX) Cleanup() error {
	for _, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

func (d *PipeMSX) log() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

// NewSimulation returns a simulation of network n with kinetics m,
// driven by flows h, set up with the standard sequence of initialization
// and timestep functions.
func NewSimulation(n *Network, m Mechanism, h FlowField, q *Quality, sources []*Source, report ReportSelection, o Options) *PipeMSX {
	d := &PipeMSX{
		Network:    n,
		Mechanism:  m,
		Hydraulics: h,
		Quality:    q,
		Sources:    sources,
		Report:     report,
		Options:    o,
		Results:    new(Results),
		RunID:      uuid.New(),
	}
	d.InitFuncs = []DomainManipulator{
		SetupNetwork(),
		InitialQuality(),
		Equilibrate(),
		Record(),
	}
	d.RunFuncs = []DomainManipulator{
		Log(),
		SetHydraulics(),
		Boundaries(),
		Calculations(Transport(m, &d.Options), React(m)),
		Mix(),
		CheckConservation(),
		Advance(),
		Record(),
		StopAfter(o.Duration),
	}
	return d
}

// SetupNetwork returns a function that checks the simulation inputs
// and allocates concentration storage for the network elements.
func SetupNetwork() DomainManipulator {
	return func(d *PipeMSX) error {
		if d.Network == nil || d.Mechanism == nil || d.Hydraulics == nil {
			return fmt.Errorf("pipemsx: network, mechanism, and hydraulics must all be specified")
		}
		if err := d.Options.check(); err != nil {
			return err
		}
		if err := d.Network.Prepare(); err != nil {
			return err
		}
		for _, sp := range d.Report.Species {
			if _, ok := d.Mechanism.Index(sp); !ok {
				return fmt.Errorf("pipemsx: report: undefined species %s", sp)
			}
		}
		for _, name := range d.Report.Nodes {
			if d.Network.Node(name) == nil {
				return fmt.Errorf("pipemsx: report: undefined node %s", name)
			}
		}
		for _, name := range d.Report.Links {
			if d.Network.Pipe(name) == nil {
				return fmt.Errorf("pipemsx: report: undefined link %s", name)
			}
		}
		nsp := d.Mechanism.Len()
		d.elements = d.elements[:0]
		for _, n := range d.Network.Nodes {
			n.C = make([]float64, nsp)
			n.inMass = make([]float64, nsp)
		}
		for _, p := range d.Network.Pipes {
			p.outMass = make([]float64, nsp)
			p.invalidFrom = -1
			d.elements = append(d.elements, p)
		}
		for _, t := range d.Network.Tanks() {
			t.C = make([]float64, nsp)
			t.invalidFrom = -1
			d.elements = append(d.elements, t)
		}
		if d.Results == nil {
			d.Results = new(Results)
		}
		if d.RunID == uuid.Nil {
			d.RunID = uuid.New()
		}
		d.Dt = d.Options.Timestep
		d.Time = 0
		d.Step = 0
		d.Done = d.Options.Duration <= 0
		d.log().WithFields(logrus.Fields{
			"run":     d.RunID,
			"nodes":   len(d.Network.Nodes),
			"pipes":   len(d.Network.Pipes),
			"tanks":   len(d.Network.Tanks()),
			"species": nsp,
		}).Info("network ready")
		return nil
	}
}
