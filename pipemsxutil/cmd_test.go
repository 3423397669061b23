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
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/pipemsx"
	"github.com/spatialmodel/pipemsx/science/chem/msxchem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setTestConfig(t *testing.T, output string) {
	dir, err := filepath.Abs("testdata")
	require.NoError(t, err)
	os.Setenv("PIPEMSX_TESTDATA", dir)
	Cfg.Set("config", "testdata/config.toml")
	Cfg.Set("OutputFile", output)
	Cfg.Set("Deadline", "")
	Cfg.Set("MetricsAddress", "")
}

func TestLoadModel(t *testing.T) {
	f, err := os.Open("testdata/arsenic.toml")
	require.NoError(t, err)
	defer f.Close()
	model, err := LoadModel(f)
	require.NoError(t, err)

	assert.Equal(t, "Arsenic Oxidation/Adsorption Example", model.Title)
	require.Len(t, model.Species, 5)
	assert.Equal(t, msxchem.Wall, model.Species[3].Type)
	assert.Equal(t, 0.001, model.Species[0].ATol)
	assert.Equal(t, msxchem.Parameter, model.Coefficients[4].Kind)
	assert.Equal(t, map[string]float64{"P3": 20}, model.Coefficients[4].PipeValues)
	assert.Equal(t, msxchem.Equil, model.Pipe[3].Kind)
	assert.Equal(t, msxchem.Formula, model.Pipe[4].Kind)
	assert.Len(t, model.Tank, 4)
	assert.Equal(t, "HR", model.Options.RateUnits)
	// Unset options keep their defaults.
	assert.Equal(t, msxchem.DefaultOptions().EquilMaxIter, model.Options.EquilMaxIter)

	m, err := msxchem.Compile(model)
	require.NoError(t, err)
	assert.Equal(t, []string{"AS3", "AS5", "AStot", "AS5s", "NH2CL"}, m.Species())
}

func TestLoadModelErrors(t *testing.T) {
	for _, text := range []string{
		"title = 1",
		"[[species]]\nname = \"A\"\ncolor = \"red\"",
		"[[species]]\nname = \"A\"\ntype = \"surface\"",
		"[[pipe]]\nspecies = \"A\"\nkind = \"sometimes\"",
	} {
		_, err := LoadModel(strings.NewReader(text))
		assert.Error(t, err, text)
	}
}

func TestLoadScenario(t *testing.T) {
	f, err := os.Open("testdata/network.yaml")
	require.NoError(t, err)
	defer f.Close()
	s, err := LoadScenario(f)
	require.NoError(t, err)

	require.Len(t, s.Network.Nodes, 5)
	assert.Equal(t, pipemsx.Reservoir, s.Network.Nodes[0].Kind)
	assert.Equal(t, pipemsx.TankNode, s.Network.Nodes[4].Kind)
	assert.Equal(t, 50., s.Network.Nodes[4].InitialVolume)
	assert.Equal(t, 100., s.Network.Nodes[1].Coordinates.X)
	require.Len(t, s.Network.Pipes, 5)
	assert.Equal(t, 150., s.Network.Pipes[3].Length)

	h, err := s.Hydraulics.Hydraulics(4000)
	require.NoError(t, err)
	assert.Equal(t, -0.004, h.Flows["P5"])

	require.Len(t, s.Sources, 2)
	assert.Equal(t, pipemsx.Setpoint, s.Sources[0].Type)
	assert.Equal(t, pipemsx.Pattern{Step: 3600, Multipliers: []float64{1, 0.5}}, s.Sources[0].Pattern)
	assert.Equal(t, pipemsx.Mass, s.Sources[1].Type)
	assert.Equal(t, pipemsx.Window{End: 3600}, s.Sources[1].Pattern)

	assert.Equal(t, 2.5, s.Quality.Nodes["R1"]["NH2CL"])
	assert.Equal(t, 1., s.Quality.Global["NH2CL"])
	assert.Len(t, s.Report.Species, 5)
}

func TestLoadScenarioErrors(t *testing.T) {
	const steps = "hydraulics:\n  steps:\n    - flows: {P1: 1}\n"
	for _, text := range []string{
		"nodes:\n  - {name: A, elevation: 3}\n" + steps,
		"nodes:\n  - {name: A, kind: pump}\n" + steps,
		"sources:\n  - {node: A, species: B, type: sometimes}\n" + steps,
		"sources:\n  - {node: A, species: B, pattern: missing}\n" + steps,
		"patterns:\n  - {name: p}\n  - {name: p}\n" + steps,
		"nodes:\n  - {name: A}\n",
	} {
		_, err := LoadScenario(strings.NewReader(text))
		assert.Error(t, err, text)
	}
}

func TestSimulationOptions(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Timestep", "60")
	cfg.Set("MaxSegments", "12")
	cfg.Set("FailFast", "true")
	o, err := simulationOptions(cfg)
	require.NoError(t, err)
	want := pipemsx.DefaultOptions()
	want.Timestep = 60
	want.MaxSegments = 12
	want.FailFast = true
	assert.Equal(t, want, o)

	cfg.Set("Timestep", "-1")
	_, err = simulationOptions(cfg)
	assert.Error(t, err)
	cfg.Set("Timestep", "often")
	_, err = simulationOptions(cfg)
	assert.Error(t, err)
}

func TestReportSelection(t *testing.T) {
	cfg := viper.New()
	cfg.Set("Report.Species", "AS3 NH2CL")
	cfg.Set("Report.Links", []string{"P1", " "})
	r, err := reportSelection(cfg)
	require.NoError(t, err)
	assert.Equal(t, pipemsx.ReportSelection{Species: []string{"AS3", "NH2CL"}, Links: []string{"P1"}}, r)
}

func TestCheckDeadline(t *testing.T) {
	d, err := checkDeadline("")
	require.NoError(t, err)
	assert.Zero(t, d)
	d, err = checkDeadline("90s")
	require.NoError(t, err)
	assert.Equal(t, 90., d.Seconds())
	_, err = checkDeadline("-1s")
	assert.Error(t, err)
}

func TestCheckLogFile(t *testing.T) {
	assert.Equal(t, "out/results.log", checkLogFile("", "out/results.db"))
	assert.Equal(t, "x.log", checkLogFile(" x.log ", "out/results.db"))
}

func TestVersion(t *testing.T) {
	buf := new(bytes.Buffer)
	Root.SetOut(buf)
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"version"})
	require.NoError(t, Root.Execute())
	assert.Equal(t, "PipeMSX v"+pipemsx.Version+"\n", buf.String())
}

func TestValidate(t *testing.T) {
	setTestConfig(t, filepath.Join(t.TempDir(), "results.db"))
	buf := new(bytes.Buffer)
	Root.SetOut(buf)
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"validate", "--verbose"})
	require.NoError(t, Root.Execute())
	out := buf.String()
	assert.Contains(t, out, "5 species, solver RK5")
	assert.Contains(t, out, "5 nodes, 5 pipes, 1 tanks, 2 sources")
	assert.Contains(t, out, "AS5s")
}

func TestRunDatabase(t *testing.T) {
	output := filepath.Join(t.TempDir(), "results.db")
	setTestConfig(t, output)
	Cfg.Set("MetricsAddress", "127.0.0.1:0")
	Root.SetOut(new(bytes.Buffer))
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"run"})
	require.NoError(t, Root.Execute())

	db, err := sql.Open("sqlite3", output)
	require.NoError(t, err)
	defer db.Close()

	var series, samples, failures int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM series`).Scan(&series))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM samples`).Scan(&samples))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM failures`).Scan(&failures))
	assert.NotZero(t, series)
	// 7200 s at 300 s per step, plus the initial values.
	assert.Equal(t, series*25, samples)
	assert.Zero(t, failures)

	var value float64
	require.NoError(t, db.QueryRow(`SELECT value FROM samples JOIN series ON series.id = samples.series_id
		WHERE kind = 'node' AND element = 'R1' AND species = 'NH2CL' AND time = 3600`).Scan(&value))
	assert.Equal(t, 2.5, value)

	var version string
	require.NoError(t, db.QueryRow(`SELECT version FROM run`).Scan(&version))
	assert.Equal(t, pipemsx.Version, version)

	_, err = os.Stat(strings.TrimSuffix(output, ".db") + ".log")
	assert.NoError(t, err, "log file should exist")
}

func TestRunGob(t *testing.T) {
	output := filepath.Join(t.TempDir(), "results.gob")
	setTestConfig(t, output)
	Root.SetOut(new(bytes.Buffer))
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"run"})
	require.NoError(t, Root.Execute())

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	r, err := pipemsx.Load(f)
	require.NoError(t, err)
	assert.Equal(t, 25, r.Len())
	v, err := r.Value(pipemsx.LinkElement, "P1", "AStot", 7200)
	require.NoError(t, err)
	as3, _ := r.Value(pipemsx.LinkElement, "P1", "AS3", 7200)
	as5, _ := r.Value(pipemsx.LinkElement, "P1", "AS5", 7200)
	assert.InDelta(t, as3+as5, v, 1e-9)
}

func TestRunDeadline(t *testing.T) {
	output := filepath.Join(t.TempDir(), "results.gob")
	setTestConfig(t, output)
	Cfg.Set("Deadline", "1ns")
	defer Cfg.Set("Deadline", "")
	Root.SetOut(new(bytes.Buffer))
	defer Root.SetOut(nil)
	Root.SetArgs([]string{"run"})
	err := Root.Execute()
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The initial values are still written.
	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	r, err := pipemsx.Load(f)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}
