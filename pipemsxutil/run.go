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

package pipemsxutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/pipemsx"
	"github.com/spf13/cobra"
)

// Run runs a simulation.
//
// LogFile is the path to the desired log file location and LogLevel is
// the minimum level of messages written to it and to the command output.
//
// ModelFile is the path to the kinetic model in TOML format and
// ScenarioFile is the path to the network, hydraulics, and initial
// quality in YAML format.
//
// OutputFile is where the results are written: a sqlite database if its
// extension is .db, .sqlite, or .sqlite3, and gob format otherwise.
//
// If MetricsAddress is not empty, simulation metrics are served in
// Prometheus format at http://MetricsAddress/metrics while the
// simulation runs.
//
// If Deadline is greater than zero, the simulation is stopped after it
// has run for that long. The timesteps completed before the deadline are
// still written to OutputFile.
//
// report, if it selects anything, replaces the report selection in the
// scenario file.
func Run(CobraCommand *cobra.Command, LogFile, LogLevel, ModelFile, ScenarioFile, OutputFile, MetricsAddress string,
	Deadline time.Duration, o pipemsx.Options, report pipemsx.ReportSelection) error {

	logfile, err := os.Create(LogFile)
	if err != nil {
		return fmt.Errorf("pipemsx: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := logrus.New()
	log.Out = io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	level, err := logrus.ParseLevel(LogLevel)
	if err != nil {
		return fmt.Errorf("pipemsx: %v", err)
	}
	log.SetLevel(level)

	m, s, err := loadFiles(ModelFile, ScenarioFile)
	if err != nil {
		return err
	}
	if len(report.Species)+len(report.Nodes)+len(report.Links) > 0 {
		s.Report = report
	}

	d := pipemsx.NewSimulation(s.Network, m, s.Hydraulics, s.Quality, s.Sources, s.Report, o)
	d.Log = log
	d.CleanupFuncs = append(d.CleanupFuncs, func(d *pipemsx.PipeMSX) error {
		return writeOutput(OutputFile, m.Title(), d.Results)
	})

	if MetricsAddress != "" {
		reg := prometheus.NewRegistry()
		if d.Metrics, err = pipemsx.NewMetrics(reg); err != nil {
			return err
		}
		srv, err := serveMetrics(MetricsAddress, reg, log)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	log.WithFields(logrus.Fields{
		"model":    ModelFile,
		"scenario": ScenarioFile,
		"solver":   m.Solver(),
		"species":  m.Len(),
		"nodes":    len(s.Network.Nodes),
		"pipes":    len(s.Network.Pipes),
	}).Info("starting simulation")
	start := time.Now()

	if err = d.Init(); err != nil {
		return err
	}

	ctx := context.Background()
	if Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, Deadline)
		defer cancel()
	}
	runErr := d.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	if err = d.Cleanup(); err != nil {
		return err
	}

	for _, f := range d.Results.Failures {
		log.WithField("element", f.Element).Warn(f.Error())
	}
	log.WithFields(logrus.Fields{
		"run":      d.RunID,
		"steps":    d.Step,
		"failures": len(d.Results.Failures),
		"walltime": time.Since(start),
		"output":   OutputFile,
	}).Info("simulation complete")
	return runErr
}

// serveMetrics serves the metrics in reg over HTTP at address.
func serveMetrics(address string, reg *prometheus.Registry, log logrus.FieldLogger) (*http.Server, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("pipemsx: starting metrics server: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.WithField("address", l.Addr().String()).Info("serving metrics")
	return srv, nil
}

// Validate checks the kinetic model and scenario files by setting up a
// simulation without running it. If verbose is true, the compiled
// model is printed to w.
func Validate(w io.Writer, ModelFile, ScenarioFile string, o pipemsx.Options, verbose bool) error {
	m, s, err := loadFiles(ModelFile, ScenarioFile)
	if err != nil {
		return err
	}
	d := pipemsx.NewSimulation(s.Network, m, s.Hydraulics, s.Quality, s.Sources, s.Report, o)
	log := logrus.New()
	log.Out = io.Discard
	d.Log = log
	if err := d.Init(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %d species, solver %s\n", ModelFile, m.Len(), m.Solver())
	fmt.Fprintf(w, "%s: %d nodes, %d pipes, %d tanks, %d sources, %d reported series\n",
		ScenarioFile, len(s.Network.Nodes), len(s.Network.Pipes), len(s.Network.Tanks()),
		len(s.Sources), len(d.Results.Series))
	if verbose {
		pretty.Fprintf(w, "%# v\n", d.Options)
		for _, sp := range m.Species() {
			i, _ := m.Index(sp)
			units, _ := m.Units(sp)
			atol, rtol := m.Tolerances(i)
			fmt.Fprintf(w, "  %-12s wall=%-5v units=%-8s atol=%g rtol=%g\n", sp, m.IsWall(i), units, atol, rtol)
		}
	}
	return nil
}
