// Package metrics declares the Prometheus collectors of the rendering pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapcomp_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"stage"})
	StageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcomp_stage_failures_total",
		Help: "Pipeline stage failures",
	}, []string{"stage"})
	BytesDownloaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapcomp_downloaded_bytes_total",
		Help: "Bytes received from remote archives and tile servers",
	})
	TilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcomp_tiles_total",
		Help: "Basemap tiles by outcome (fetched, cached, missing, failed)",
	}, []string{"provider", "outcome"})
	FiguresRendered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapcomp_figures_rendered_total",
		Help: "Rendered figures by output format",
	}, []string{"format"})
)

func init() {
	prometheus.MustRegister(StageDurationSeconds)
	prometheus.MustRegister(StageFailuresTotal)
	prometheus.MustRegister(BytesDownloaded)
	prometheus.MustRegister(TilesTotal)
	prometheus.MustRegister(FiguresRendered)
}

// ObserveStage records the duration since start and counts a failure when err is set.
func ObserveStage(stage string, start time.Time, err error) {
	StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		StageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// WriteFile dumps every registered metric in text exposition format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
