package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"misdash/pkg/metrics"
)

type RouterOptions struct {
	CORSOrigins []string
	MetricsPath string
}

// GetRouter initialises a new http router and applies all routes
func GetRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&logFormatter{}))
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler)
	}
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, metrics.Handler())
	}
	return applyRoutes(r, h)
}

func applyRoutes(r chi.Router, h *Handler) chi.Router {
	r.Get("/healthz", h.getHealth)
	r.Get("/avatar", h.getAvatar)

	r.Route("/views", func(r chi.Router) {
		r.Get("/", h.listViews)
		r.Route("/{view}", func(r chi.Router) {
			r.Get("/", h.getView)
			r.Post("/refresh", h.refreshView)
			r.Get("/ranking", h.getRanking)
			r.Get("/totals", h.getTotals)
			r.Get("/export.xlsx", h.exportView)
		})
	})

	r.Route("/commitments", func(r chi.Router) {
		r.Get("/", h.listCommitments)
		r.Post("/select", h.selectCommitments)
		r.Delete("/select", h.clearSelection)
		r.Post("/submit", h.submitCommitments)
		r.Post("/reset", h.resetCommitments)
		r.Post("/{key}/select", h.selectCommitment)
		r.Delete("/{key}/select", h.deselectCommitment)
		r.Put("/{key}/fields/{field}", h.setField)
	})

	return r
}

// logFormatter sends chi request logs through logrus.
type logFormatter struct{}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{fields: log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}}
}

type logEntry struct {
	fields log.Fields
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	entry := log.WithFields(e.fields).WithFields(log.Fields{
		"status":  status,
		"bytes":   bytes,
		"elapsed": elapsed.String(),
	})
	if status >= 500 {
		entry.Warn("request")
		return
	}
	entry.Debug("request")
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	log.WithFields(e.fields).Errorf("panic: %v\n%s", v, stack)
}
