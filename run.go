/*
Copyright (C) 2013-2014 Regents of the University of Minnesota.
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
	"errors"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Calculations returns a function that concurrently runs a series of
// calculations on all of the pipes and tanks. Each element is handled
// by a single worker, so calculators may modify the element freely but
// nothing else. Numerical failures are collected and, unless
// Options.FailFast is set, do not stop the other elements.
func Calculations(calculators ...ElementManipulator) DomainManipulator {
	return func(d *PipeMSX) error {
		nprocs := d.Options.Workers
		if nprocs <= 0 {
			nprocs = runtime.GOMAXPROCS(0)
		}
		elems := d.elements
		errs := make([]*NumericalFailure, len(elems))

		g, ctx := errgroup.WithContext(d.runContext())
		for pp := 0; pp < nprocs; pp++ {
			pp := pp
			g.Go(func() error {
				for ii := pp; ii < len(elems); ii += nprocs {
					if err := ctx.Err(); err != nil {
						return err
					}
					e := elems[ii]
					for _, f := range calculators {
						err := f(e, d.Dt)
						if err == nil {
							continue
						}
						var nf *NumericalFailure
						if errors.As(err, &nf) && !d.Options.FailFast {
							errs[ii] = nf
							break
						}
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, nf := range errs {
			if nf != nil {
				d.fail(nf)
			}
		}
		return nil
	}
}

func (d *PipeMSX) runContext() context.Context {
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}

// fail marks the element of nf as invalid and queues nf to be recorded
// with the current timestep.
func (d *PipeMSX) fail(nf *NumericalFailure) {
	switch nf.Kind {
	case LinkElement:
		d.Network.Pipe(nf.Element).invalidFrom = nf.Time
	case TankElement:
		d.Network.Node(nf.Element).Tank().invalidFrom = nf.Time
	}
	d.pending = append(d.pending, nf)
	d.log().WithFields(logrus.Fields{
		"run":     d.RunID,
		"element": nf.Element,
		"kind":    nf.Kind,
		"step":    nf.Step,
		"time":    nf.Time,
	}).Warn(nf.Err)
}

// CheckConservation returns a function that checks that the segment
// volumes of every pipe add up to the pipe volume.
func CheckConservation() DomainManipulator {
	return func(d *PipeMSX) error {
		if !d.Options.CheckConservation {
			return nil
		}
		for _, p := range d.Network.Pipes {
			if err := p.checkVolume(d.Options.VolumeTol); err != nil {
				return err
			}
		}
		return nil
	}
}

// Advance returns a function that moves the simulation clock forward by
// one timestep.
func Advance() DomainManipulator {
	return func(d *PipeMSX) error {
		d.Time += d.Dt
		d.Step++
		d.Metrics.observe(d, time.Since(d.stepStart))
		return nil
	}
}

// StopAfter returns a function that sets the Done flag once the
// simulation has reached the given duration [s]. The last timestep is
// shortened if necessary so the simulation ends exactly at duration.
func StopAfter(duration float64) DomainManipulator {
	return func(d *PipeMSX) error {
		// Allow for round-off in accumulated time.
		rem := duration - d.Time
		if rem <= 1e-9*d.Options.Timestep {
			d.Done = true
		} else if rem < d.Dt {
			d.Dt = rem
		}
		return nil
	}
}

// Log returns a function that writes simulation status messages to
// d.Log.
func Log() DomainManipulator {
	startTime := time.Now()
	timeStepTime := time.Now()

	return func(d *PipeMSX) error {
		var segs int
		for _, p := range d.Network.Pipes {
			segs += p.segs.len()
		}
		d.log().WithFields(logrus.Fields{
			"run":       d.RunID,
			"step":      d.Step + 1,
			"time":      d.Time,
			"walltime":  time.Since(startTime).Round(time.Millisecond),
			"Δwalltime": time.Since(timeStepTime).Round(time.Millisecond),
			"segments":  segs,
			"failures":  len(d.Results.Failures),
		}).Debug("timestep")
		timeStepTime = time.Now()
		return nil
	}
}
