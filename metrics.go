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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors describing simulation progress.
// A nil *Metrics records nothing.
type Metrics struct {
	Steps        prometheus.Counter
	Substeps     *prometheus.CounterVec
	Evaluations  prometheus.Counter
	Failures     *prometheus.CounterVec
	Segments     prometheus.Gauge
	StepDuration prometheus.Histogram
}

// NewMetrics creates the simulation metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipemsx_timesteps_total",
			Help: "Number of committed control timesteps.",
		}),
		Substeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipemsx_reaction_substeps_total",
			Help: "Number of reaction integration substeps.",
		}, []string{"result"}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipemsx_rate_evaluations_total",
			Help: "Number of reaction rate function evaluations.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipemsx_numerical_failures_total",
			Help: "Number of network elements whose reactions failed.",
		}, []string{"kind"}),
		Segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pipemsx_segments",
			Help: "Number of water segments in all pipes.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipemsx_timestep_duration_seconds",
			Help:    "Wall time spent on each control timestep.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, c := range []prometheus.Collector{m.Steps, m.Substeps, m.Evaluations, m.Failures, m.Segments, m.StepDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records one committed timestep.
func (m *Metrics) observe(d *PipeMSX, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Steps.Inc()
	m.StepDuration.Observe(elapsed.Seconds())
	var stats ReactionStats
	var segs int
	for _, p := range d.Network.Pipes {
		stats.Add(p.stats)
		segs += p.segs.len()
	}
	for _, t := range d.Network.Tanks() {
		stats.Add(t.stats)
	}
	m.Substeps.WithLabelValues("accepted").Add(float64(stats.Accepted))
	m.Substeps.WithLabelValues("rejected").Add(float64(stats.Rejected))
	m.Evaluations.Add(float64(stats.Evaluations))
	m.Segments.Set(float64(segs))
	for _, f := range d.pending {
		m.Failures.WithLabelValues(f.Kind.String()).Inc()
	}
}
