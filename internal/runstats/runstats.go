// Package runstats exposes run outcomes as Prometheus metrics written to a
// node-exporter textfile, since a batch run has no scrape endpoint.
package runstats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"chronicreport/internal/domain"
	"chronicreport/internal/engine"
)

type Metrics struct {
	registry *prometheus.Registry

	Circuits          *prometheus.GaugeVec
	TotalChronic      prometheus.Gauge
	Warnings          *prometheus.GaugeVec
	DuplicatesRemoved prometheus.Gauge
	TestRowsFiltered  prometheus.Gauge
	BaselineFound     prometheus.Gauge
	RunDuration       prometheus.Gauge
	LastSuccess       prometheus.Gauge
	Runs              *prometheus.CounterVec
}

var allCategories = []domain.Category{
	domain.CategoryConsistent,
	domain.CategoryInconsistent,
	domain.CategoryNewChronic,
	domain.CategoryMedia,
	domain.CategoryWatch30,
	domain.CategoryWatch60,
	domain.CategoryNotChronic,
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Circuits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chronic_report_circuits",
			Help: "Circuits per category in the last completed run",
		}, []string{"category"}),
		TotalChronic: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_total_chronic",
			Help: "Headline chronic total in the last completed run",
		}),
		Warnings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chronic_report_warnings",
			Help: "Warnings raised by the last completed run",
		}, []string{"kind"}),
		DuplicatesRemoved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_duplicates_removed",
			Help: "Duplicate incident rows removed in the last completed run",
		}),
		TestRowsFiltered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_test_rows_filtered",
			Help: "Test circuit rows dropped in the last completed run",
		}),
		BaselineFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_baseline_found",
			Help: "1 when the last completed run had a prior snapshot",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chronic_report_last_success_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chronic_report_runs_total",
			Help: "Runs attempted by this process",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.Circuits, m.TotalChronic, m.Warnings, m.DuplicatesRemoved, m.TestRowsFiltered,
		m.BaselineFound, m.RunDuration, m.LastSuccess, m.Runs,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSuccess records a completed run.
func (m *Metrics) ObserveSuccess(res *engine.Result, took time.Duration, at time.Time) {
	byCategory := make(map[domain.Category]int)
	for _, cr := range res.Circuits {
		byCategory[cr.Classification.Category]++
	}
	for _, c := range allCategories {
		m.Circuits.WithLabelValues(string(c)).Set(float64(byCategory[c]))
	}
	m.TotalChronic.Set(float64(res.Counts.TotalChronic))

	m.Warnings.Reset()
	for _, w := range res.Warnings {
		m.Warnings.WithLabelValues(string(w.Kind)).Inc()
	}
	m.DuplicatesRemoved.Set(float64(res.Metadata.DuplicatesRemoved))
	m.TestRowsFiltered.Set(float64(res.Metadata.TestRowsFiltered))
	if res.Metadata.BaselineFound {
		m.BaselineFound.Set(1)
	} else {
		m.BaselineFound.Set(0)
	}
	m.RunDuration.Set(took.Seconds())
	m.LastSuccess.Set(float64(at.Unix()))
	m.Runs.WithLabelValues("success").Inc()
}

func (m *Metrics) ObserveFailure(took time.Duration) {
	m.RunDuration.Set(took.Seconds())
	m.Runs.WithLabelValues("failure").Inc()
}

// WriteTextfile atomically replaces path with the current metric values.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
