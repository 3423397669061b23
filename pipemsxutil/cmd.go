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

// Package pipemsxutil contains the command-line interface for PipeMSX.
package pipemsxutil

import (
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/pipemsx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	defaults := pipemsx.DefaultOptions()

	// Options are the configuration options available to PipeMSX.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "ModelFile",
			usage: `
              ModelFile is the path to the kinetic model file, in TOML
              format. It can include environment variables.`,
			shorthand:  "m",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "ScenarioFile",
			usage: `
              ScenarioFile is the path to the file describing the pipe
              network, its hydraulics, initial water quality, sources,
              and report selection, in YAML format. It can include
              environment variables.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path where the results should be written.
              Files ending in .db, .sqlite, or .sqlite3 are written as
              sqlite databases; anything else is written in gob format.`,
			shorthand:  "o",
			defaultVal: "pipemsx_results.db",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired log file location. If it
              is empty, the log is written next to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages: debug, info,
              warning, or error. Progress is logged at the debug level.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MetricsAddress",
			usage: `
              MetricsAddress, if not empty, is the address (for example
              ":2112") where simulation metrics are served in Prometheus
              format while the simulation runs.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Deadline",
			usage: `
              Deadline, if not empty, is the longest the simulation may run,
              for example "30m". Timesteps completed before the deadline
              are still written to OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Timestep",
			usage: `
              Timestep is the water quality timestep [s].`,
			shorthand:  "t",
			defaultVal: defaults.Timestep,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "Duration",
			usage: `
              Duration is the length of the simulation [s].`,
			shorthand:  "d",
			defaultVal: defaults.Duration,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "MaxSegments",
			usage: `
              MaxSegments is the largest number of water segments allowed
              in a pipe. When it is exceeded the most similar neighboring
              segments are merged.`,
			defaultVal: defaults.MaxSegments,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "MergeATol",
			usage: `
              MergeATol and MergeRTol, if greater than zero, are the
              absolute and relative differences below which neighboring
              segments are merged. By default each species' reaction
              tolerances are used.`,
			defaultVal: defaults.MergeATol,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "MergeRTol",
			usage: `
              See MergeATol.`,
			defaultVal: defaults.MergeRTol,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "Viscosity",
			usage: `
              Viscosity is the kinematic viscosity of water [m²/s], used to
              calculate the Reynolds number.`,
			defaultVal: defaults.Viscosity,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), validateCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of pipes and tanks processed in
              parallel. If it is zero, the number of processors is used.`,
			defaultVal: defaults.Workers,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "FailFast",
			usage: `
              FailFast specifies whether the simulation should stop at the
              first numerical failure. Otherwise the failing pipe or tank
              is marked invalid and the simulation continues.`,
			defaultVal: defaults.FailFast,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CheckConservation",
			usage: `
              CheckConservation specifies whether water volume and species
              mass are checked for conservation after each transport and
              mixing step.`,
			defaultVal: defaults.CheckConservation,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Report.Species",
			usage: `
              Report.Species, Report.Nodes, and Report.Links select what
              is written to OutputFile. If any is set they replace the
              report selection in ScenarioFile. Empty lists select
              everything.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Report.Nodes",
			usage: `
              See Report.Species.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Report.Links",
			usage: `
              See Report.Species.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "verbose",
			usage: `
              verbose specifies whether to print the compiled model.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{validateCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("PIPEMSX")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
			case int:
				set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(validateCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(expand(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("pipemsx: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "pipemsx",
	Short: "A multi-species water quality model for pipe networks.",
	Long: `PipeMSX simulates the transport, mixing, and reaction of multiple
interacting chemical species in drinking water distribution networks.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'PIPEMSX_var' where 'var' is the
name of the variable to be set. File paths may contain environment variables.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of PipeMSX.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("PipeMSX v%s\n", pipemsx.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that runs a simulation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run runs a water quality simulation using the kinetic model in
ModelFile and the network and hydraulics in ScenarioFile, and writes the
results to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := simulationOptions(Cfg)
		if err != nil {
			return err
		}
		modelFile, scenarioFile, err := checkInputFiles(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		deadline, err := checkDeadline(Cfg.GetString("Deadline"))
		if err != nil {
			return err
		}
		report, err := reportSelection(Cfg)
		if err != nil {
			return err
		}
		return Run(
			cmd,
			checkLogFile(Cfg.GetString("LogFile"), outputFile),
			Cfg.GetString("LogLevel"),
			modelFile,
			scenarioFile,
			outputFile,
			Cfg.GetString("MetricsAddress"),
			deadline,
			o,
			report,
		)
	},
	DisableAutoGenTag: true,
}

// validateCmd is a command that checks the input files.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the input files.",
	Long: `validate reads and checks the kinetic model and scenario files and
sets up the simulation without running it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := simulationOptions(Cfg)
		if err != nil {
			return err
		}
		modelFile, scenarioFile, err := checkInputFiles(Cfg)
		if err != nil {
			return err
		}
		return Validate(cmd.OutOrStdout(), modelFile, scenarioFile, o, Cfg.GetBool("verbose"))
	},
	DisableAutoGenTag: true,
}
