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
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom"
	"github.com/spatialmodel/pipemsx"
	"github.com/spatialmodel/pipemsx/science/chem/msxchem"
	"gopkg.in/yaml.v3"
)

// LoadModel reads a kinetic model in TOML format.
func LoadModel(r io.Reader) (*msxchem.Model, error) {
	m := &msxchem.Model{Options: msxchem.DefaultOptions()}
	md, err := toml.DecodeReader(r, m)
	if err != nil {
		return nil, fmt.Errorf("pipemsx: reading kinetic model: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("pipemsx: reading kinetic model: unknown keys %v", undecoded)
	}
	return m, nil
}

// Scenario holds everything about a simulation other than the
// chemistry.
type Scenario struct {
	Network    *pipemsx.Network
	Hydraulics pipemsx.FlowField
	Quality    *pipemsx.Quality
	Sources    []*pipemsx.Source
	Report     pipemsx.ReportSelection
}

type inputNode struct {
	Name   string  `yaml:"name"`
	Kind   string  `yaml:"kind"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Volume float64 `yaml:"volume"`
}

type inputPipe struct {
	Name      string  `yaml:"name"`
	From      string  `yaml:"from"`
	To        string  `yaml:"to"`
	Length    float64 `yaml:"length"`
	Diameter  float64 `yaml:"diameter"`
	Roughness float64 `yaml:"roughness"`
	Volume    float64 `yaml:"volume"`
}

type inputSource struct {
	Node     string  `yaml:"node"`
	Species  string  `yaml:"species"`
	Type     string  `yaml:"type"`
	Strength float64 `yaml:"strength"`
	Pattern  string  `yaml:"pattern"`
	Start    float64 `yaml:"start"`
	End      float64 `yaml:"end"`
}

type inputPattern struct {
	Name        string    `yaml:"name"`
	Start       float64   `yaml:"start"`
	Step        float64   `yaml:"step"`
	Multipliers []float64 `yaml:"multipliers"`
}

type input struct {
	Nodes      []inputNode             `yaml:"nodes"`
	Pipes      []inputPipe             `yaml:"pipes"`
	Hydraulics pipemsx.HydraulicSeries `yaml:"hydraulics"`
	Quality    pipemsx.Quality         `yaml:"quality"`
	Sources    []inputSource           `yaml:"sources"`
	Patterns   []inputPattern          `yaml:"patterns"`
	Report     pipemsx.ReportSelection `yaml:"report"`
}

// LoadScenario reads a network, its hydraulics, and its initial
// quality and sources in YAML format.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var in input
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("pipemsx: reading scenario: %v", err)
	}
	s := &Scenario{
		Network:    new(pipemsx.Network),
		Hydraulics: &in.Hydraulics,
		Quality:    &in.Quality,
		Report:     in.Report,
	}
	if len(in.Hydraulics.Steps) == 0 {
		return nil, fmt.Errorf("pipemsx: reading scenario: no hydraulic steps")
	}
	for _, n := range in.Nodes {
		kind, err := pipemsx.ParseNodeKind(n.Kind)
		if err != nil {
			return nil, fmt.Errorf("pipemsx: reading scenario: node %s: %v", n.Name, err)
		}
		s.Network.Nodes = append(s.Network.Nodes, &pipemsx.Node{
			Name:          n.Name,
			Kind:          kind,
			Coordinates:   geom.Point{X: n.X, Y: n.Y},
			InitialVolume: n.Volume,
		})
	}
	for _, p := range in.Pipes {
		s.Network.Pipes = append(s.Network.Pipes, &pipemsx.Pipe{
			Name:      p.Name,
			From:      p.From,
			To:        p.To,
			Length:    p.Length,
			Diameter:  p.Diameter,
			Roughness: p.Roughness,
			Volume:    p.Volume,
		})
	}
	patterns := make(map[string]pipemsx.Pattern)
	for _, p := range in.Patterns {
		if _, ok := patterns[p.Name]; ok {
			return nil, fmt.Errorf("pipemsx: reading scenario: duplicate pattern %s", p.Name)
		}
		patterns[p.Name] = pipemsx.Pattern{Start: p.Start, Step: p.Step, Multipliers: p.Multipliers}
	}
	for _, src := range in.Sources {
		typ, err := pipemsx.ParseSourceType(src.Type)
		if err != nil {
			return nil, fmt.Errorf("pipemsx: reading scenario: source at %s: %v", src.Node, err)
		}
		source := &pipemsx.Source{Node: src.Node, Species: src.Species, Type: typ, Strength: src.Strength}
		switch {
		case src.Pattern != "":
			p, ok := patterns[src.Pattern]
			if !ok {
				return nil, fmt.Errorf("pipemsx: reading scenario: source at %s: undefined pattern %s", src.Node, src.Pattern)
			}
			source.Pattern = p
		case src.Start != 0 || src.End != 0:
			source.Pattern = pipemsx.Window{Start: src.Start, End: src.End}
		}
		s.Sources = append(s.Sources, source)
	}
	return s, nil
}

// loadFiles reads and compiles the kinetic model and reads the scenario.
func loadFiles(modelFile, scenarioFile string) (*msxchem.Mechanism, *Scenario, error) {
	f, err := os.Open(modelFile)
	if err != nil {
		return nil, nil, fmt.Errorf("pipemsx: opening kinetic model: %v", err)
	}
	defer f.Close()
	model, err := LoadModel(f)
	if err != nil {
		return nil, nil, err
	}
	m, err := msxchem.Compile(model)
	if err != nil {
		return nil, nil, err
	}

	f2, err := os.Open(scenarioFile)
	if err != nil {
		return nil, nil, fmt.Errorf("pipemsx: opening scenario: %v", err)
	}
	defer f2.Close()
	s, err := LoadScenario(f2)
	if err != nil {
		return nil, nil, err
	}
	return m, s, nil
}
