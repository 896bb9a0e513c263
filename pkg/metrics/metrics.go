package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "misdash"

var (
	// SheetFetches counts export fetches by sheet and outcome (ok, fetch_failed, invalid_format).
	SheetFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sheet_fetches_total",
		Help:      "Spreadsheet fetches by outcome.",
	}, []string{"source", "result"})

	RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "view_refresh_seconds",
		Help:      "Time spent running a full view pipeline.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"view"})

	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Commitment submissions by outcome (ok, failed, noop).",
	}, []string{"result"})

	ImageProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_probes_total",
		Help:      "Avatar fallback chain results (displaying, exhausted).",
	}, []string{"result"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
