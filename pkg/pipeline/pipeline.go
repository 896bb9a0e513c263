package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"misdash/pkg/extract"
	"misdash/pkg/metrics"
	"misdash/pkg/sheets"
)

var tracer = otel.Tracer("misdash/pipeline")

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// DisplayRow pairs a normalized row with the fields derived from it.
type DisplayRow struct {
	Row     sheets.Row      `json:"row"`
	Derived extract.Derived `json:"derived"`
}

// State is what a page renders. On error Rows is always empty.
type State struct {
	View        string       `json:"view"`
	Title       string       `json:"title,omitempty"`
	Status      Status       `json:"status"`
	Columns     []string     `json:"columns"`
	Rows        []DisplayRow `json:"rows"`
	ErrorKind   string       `json:"errorKind,omitempty"`
	Error       string       `json:"error,omitempty"`
	RefreshedAt *time.Time   `json:"refreshedAt,omitempty"`

	err error
}

// Err is the tagged failure of the last refresh, if any.
func (s State) Err() error { return s.err }

type Options struct {
	Name        string
	Title       string
	Normalize   sheets.NormalizeOptions
	Fields      extract.FieldMap
	Aggregation string
	TopN        int
	// Timeout bounds one refresh. Zero leaves it to the source.
	Timeout time.Duration
}

// Pipeline runs fetch, parse, normalize and derive for one view.
type Pipeline struct {
	opts   Options
	source sheets.Source

	group singleflight.Group
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

func New(opts Options, source sheets.Source) *Pipeline {
	return &Pipeline{
		opts:   opts,
		source: source,
		state:  State{View: opts.Name, Title: opts.Title, Status: StatusIdle, Rows: []DisplayRow{}},
		now:    time.Now,
	}
}

func (p *Pipeline) Name() string { return p.opts.Name }

func (p *Pipeline) Options() Options { return p.opts }

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Refresh discards the current table and re-runs the whole pipeline. Callers that
// arrive while a refresh is in flight wait for it and share its result. The shared
// run is detached from the caller that started it, so one caller going away does not
// fail the refresh for the others; each caller still stops waiting when its own ctx
// is done.
func (p *Pipeline) Refresh(ctx context.Context) (State, error) {
	ch := p.group.DoChan("refresh", func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if p.opts.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, p.opts.Timeout)
			defer cancel()
		}
		return nil, p.run(runCtx)
	})
	select {
	case res := <-ch:
		if res.Shared {
			log.WithField("view", p.opts.Name).Debug("joined in-flight refresh")
		}
		return p.State(), res.Err
	case <-ctx.Done():
		return p.State(), ctx.Err()
	}
}

func (p *Pipeline) run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pipeline.refresh",
		trace.WithAttributes(attribute.String("view", p.opts.Name)))
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.RefreshDuration.WithLabelValues(p.opts.Name).Observe(time.Since(start).Seconds())
	}()

	p.setState(State{View: p.opts.Name, Title: p.opts.Title, Status: StatusLoading, Rows: []DisplayRow{}})

	table, err := p.source.Fetch(ctx)
	if err != nil {
		span.RecordError(err)
		p.fail(err)
		return err
	}

	rows := sheets.Normalize(table, p.opts.Normalize)
	display := make([]DisplayRow, len(rows))
	for i, r := range rows {
		display[i] = DisplayRow{Row: r, Derived: extract.Derive(r, p.opts.Fields)}
	}
	cols := make([]string, table.Width())
	for i := range cols {
		cols[i] = table.Label(i)
	}

	now := p.now()
	p.setState(State{
		View:        p.opts.Name,
		Title:       p.opts.Title,
		Status:      StatusReady,
		Columns:     cols,
		Rows:        display,
		RefreshedAt: &now,
	})
	span.SetAttributes(attribute.Int("rows", len(display)))
	log.WithFields(log.Fields{"view": p.opts.Name, "rows": len(display)}).Debug("view refreshed")
	return nil
}

func (p *Pipeline) fail(err error) {
	now := p.now()
	p.setState(State{
		View:        p.opts.Name,
		Title:       p.opts.Title,
		Status:      StatusError,
		Rows:        []DisplayRow{},
		ErrorKind:   ErrorKind(err),
		Error:       err.Error(),
		RefreshedAt: &now,
		err:         err,
	})
	log.WithFields(log.Fields{"view": p.opts.Name, "kind": ErrorKind(err)}).Warnf("refresh failed: %v", err)
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// ErrorKind names the error category shown to the user next to the retry action.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, sheets.ErrInvalidFormat):
		return "invalid_format"
	}
	// transport errors, timeouts and cancellations all read as a failed fetch
	return "fetch_failed"
}
