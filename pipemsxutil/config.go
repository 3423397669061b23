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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/pipemsx"
	"github.com/spf13/cast"
)

// expand expands environment variables and removes surrounding space.
func expand(s string) string {
	return os.ExpandEnv(strings.TrimSpace(s))
}

// simulationOptions reads the simulation options from cfg. Values from
// configuration files and environment variables may be strings, so they
// are converted with cast.
func simulationOptions(cfg *viper.Viper) (pipemsx.Options, error) {
	o := pipemsx.DefaultOptions()
	var err error
	floats := []struct {
		name string
		v    *float64
	}{
		{"Timestep", &o.Timestep},
		{"Duration", &o.Duration},
		{"MergeATol", &o.MergeATol},
		{"MergeRTol", &o.MergeRTol},
		{"Viscosity", &o.Viscosity},
	}
	for _, f := range floats {
		if !cfg.IsSet(f.name) {
			continue
		}
		if *f.v, err = cast.ToFloat64E(cfg.Get(f.name)); err != nil {
			return o, fmt.Errorf("pipemsx: reading %s: %v", f.name, err)
		}
	}
	if cfg.IsSet("MaxSegments") {
		if o.MaxSegments, err = cast.ToIntE(cfg.Get("MaxSegments")); err != nil {
			return o, fmt.Errorf("pipemsx: reading MaxSegments: %v", err)
		}
	}
	if cfg.IsSet("Workers") {
		if o.Workers, err = cast.ToIntE(cfg.Get("Workers")); err != nil {
			return o, fmt.Errorf("pipemsx: reading Workers: %v", err)
		}
	}
	if cfg.IsSet("FailFast") {
		if o.FailFast, err = cast.ToBoolE(cfg.Get("FailFast")); err != nil {
			return o, fmt.Errorf("pipemsx: reading FailFast: %v", err)
		}
	}
	if cfg.IsSet("CheckConservation") {
		if o.CheckConservation, err = cast.ToBoolE(cfg.Get("CheckConservation")); err != nil {
			return o, fmt.Errorf("pipemsx: reading CheckConservation: %v", err)
		}
	}
	if o.Timestep <= 0 {
		return o, fmt.Errorf("pipemsx: Timestep must be greater than zero, got %g", o.Timestep)
	}
	if o.Duration < 0 {
		return o, fmt.Errorf("pipemsx: Duration must not be negative, got %g", o.Duration)
	}
	return o, nil
}

// checkInputFiles makes sure that the kinetic model and scenario files
// are specified and exist, and expands any environment variables.
func checkInputFiles(cfg *viper.Viper) (model, scenario string, err error) {
	model = expand(cfg.GetString("ModelFile"))
	scenario = expand(cfg.GetString("ScenarioFile"))
	for _, f := range []struct{ name, path string }{{"ModelFile", model}, {"ScenarioFile", scenario}} {
		if f.path == "" {
			return "", "", fmt.Errorf("pipemsx: %s is not specified", f.name)
		}
		if _, err := os.Stat(f.path); err != nil {
			return "", "", fmt.Errorf("pipemsx: %s: %v", f.name, err)
		}
	}
	return model, scenario, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	f = expand(f)
	if f == "" {
		return "", fmt.Errorf("pipemsx: OutputFile is not specified")
	}
	dir := filepath.Dir(f)
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("pipemsx: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile returns the log file path, which is next to the output
// file if it is not specified.
func checkLogFile(logFile, outputFile string) string {
	logFile = expand(logFile)
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// checkDeadline parses the simulation deadline. An empty string means
// no deadline.
func checkDeadline(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("pipemsx: reading Deadline: %v", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("pipemsx: Deadline must not be negative, got %v", d)
	}
	return d, nil
}

// reportSelection reads the report selection from cfg.
func reportSelection(cfg *viper.Viper) (pipemsx.ReportSelection, error) {
	var r pipemsx.ReportSelection
	for _, f := range []struct {
		name string
		v    *[]string
	}{
		{"Report.Species", &r.Species},
		{"Report.Nodes", &r.Nodes},
		{"Report.Links", &r.Links},
	} {
		if !cfg.IsSet(f.name) {
			continue
		}
		s, err := cast.ToStringSliceE(cfg.Get(f.name))
		if err != nil {
			return r, fmt.Errorf("pipemsx: reading %s: %v", f.name, err)
		}
		for _, v := range s {
			if v = strings.TrimSpace(v); v != "" {
				*f.v = append(*f.v, v)
			}
		}
	}
	return r, nil
}
