package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callmap_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callmap_analysis_seconds",
		Help:    "Time spent in each analysis phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	ModulesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callmap_modules_analyzed_total",
		Help: "Total number of modules processed, by outcome.",
	}, []string{"outcome"})

	DiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callmap_diagnostics_total",
		Help: "Total number of diagnostics emitted, by kind.",
	}, []string{"kind"})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callmap_graph_nodes_total",
		Help: "Total number of symbols in the call graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callmap_graph_edges_total",
		Help: "Total number of deduplicated call edges in the call graph.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callmap_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
