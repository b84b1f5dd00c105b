// Package metrics counts condition verdicts and test outcomes of a suite
// run and writes them in the Prometheus text format, ready for the node
// exporter's textfile collector.
package metrics

import (
	"fmt"
	"strings"

	"github.com/ajxudir/asttest/pkg/condition"
	"github.com/ajxudir/asttest/pkg/suite"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "asttest"

// Collector holds the run's metrics in a private registry, so several
// collectors can coexist in one process.
type Collector struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	tests       *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "condition_evaluations_total",
			Help:      "Test condition evaluations by typename, phase and resulting status.",
		}, []string{"typename", "phase", "status"}),
		tests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tests_total",
			Help:      "Tests by final result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "test_duration_seconds",
			Help:      "Wall-clock duration of executed tests.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
	}
	c.registry.MustRegister(c.evaluations, c.tests, c.duration)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveCondition counts one condition evaluation. It has the shape of a
// condition.Observer and is registered without a status filter.
func (c *Collector) ObserveCondition(cond condition.Condition) {
	cfg := cond.Config()
	c.evaluations.WithLabelValues(cfg.Typename, strings.ToLower(cfg.Role), string(cond.Status())).Inc()
}

// ObserveTest counts one test result. Tests that ran also feed the
// duration histogram.
func (c *Collector) ObserveTest(tr suite.TestResult) {
	c.tests.WithLabelValues(tr.Status).Inc()
	if tr.Ran() {
		c.duration.Observe(tr.Duration.Seconds())
	}
}

// WriteFile writes all metrics to path in the text exposition format. The
// file is replaced atomically.
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
