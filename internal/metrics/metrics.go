// SPDX-License-Identifier: MPL-2.0

// Package metrics records install pipeline metrics in a private Prometheus
// registry. keg is a short-lived CLI, so metrics are exported by writing a
// node_exporter textfile at exit rather than served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "keg"

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the keg collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
	installsTotal *prometheus.CounterVec
	fetchBytes    prometheus.Counter
	cacheHits     prometheus.Counter
	assertions    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"stage"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stages_total",
				Help:      "Pipeline stages run, by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		installsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Formula installs, by outcome",
			},
			[]string{"outcome"},
		),
		fetchBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_bytes_total",
				Help:      "Bytes downloaded from artifact URLs",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_cache_hits_total",
				Help:      "Artifacts served from the download cache",
			},
		),
		assertions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "test_assertions_total",
				Help:      "Test assertions run, by result",
			},
			[]string{"result"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.stageDuration,
		m.stagesTotal,
		m.installsTotal,
		m.fetchBytes,
		m.cacheHits,
		m.assertions,
	)
	return m
}

// ObserveStage records one finished pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stagesTotal.WithLabelValues(stage, outcome(err)).Inc()
}

// InstallDone records the outcome of one formula install.
func (m *Metrics) InstallDone(outcome string) {
	if m == nil {
		return
	}
	m.installsTotal.WithLabelValues(outcome).Inc()
}

// FetchDone records a fetched artifact.
func (m *Metrics) FetchDone(size int64, fromCache bool) {
	if m == nil {
		return
	}
	if fromCache {
		m.cacheHits.Inc()
		return
	}
	m.fetchBytes.Add(float64(size))
}

// AssertionsDone records the results of a test run.
func (m *Metrics) AssertionsDone(passed, failed int) {
	if m == nil {
		return
	}
	m.assertions.WithLabelValues("passed").Add(float64(passed))
	m.assertions.WithLabelValues("failed").Add(float64(failed))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteFile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
