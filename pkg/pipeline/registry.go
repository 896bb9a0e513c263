package pipeline

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"misdash/pkg/config"
	"misdash/pkg/extract"
	"misdash/pkg/sheets"
)

// Deps are the shared clients every source is built from.
type Deps struct {
	Fetcher    *sheets.Fetcher
	APIOptions []option.ClientOption
	// Timeout is the per-call deadline of every outbound request. Zero keeps the
	// source defaults.
	Timeout time.Duration
}

// NewDeps builds the default dependencies with a single outbound timeout policy.
func NewDeps(c *config.Configuration) Deps {
	client := &http.Client{Timeout: c.HTTPTimeout}
	d := Deps{Fetcher: sheets.NewFetcher(client, c.ExportURL), Timeout: c.HTTPTimeout}
	if c.GoogleCredentials != "" {
		d.APIOptions = append(d.APIOptions, option.WithCredentialsFile(c.GoogleCredentials))
	}
	return d
}

// apiRetryCalls is how many call timeouts one API fetch may spend, backoff included.
const apiRetryCalls = 6

// SourceFor builds the data source a view reads from.
func SourceFor(ctx context.Context, v config.View, d Deps) (sheets.Source, error) {
	switch v.Source {
	case config.SourceGviz:
		return &sheets.GvizSource{Fetcher: d.Fetcher, SpreadsheetID: v.SpreadsheetID, Sheet: v.Sheet}, nil
	case config.SourceAPI:
		src, err := sheets.NewAPISource(ctx, v.SpreadsheetID, v.Sheet, d.APIOptions...)
		if err != nil {
			return nil, err
		}
		if d.Timeout > 0 {
			src.Timeout = d.Timeout
			src.RetryBudget = apiRetryCalls * d.Timeout
		}
		return src, nil
	case config.SourceMock:
		return &sheets.MockSource{Table: sheets.NewMockTable(v.MockColumns, v.MockRows)}, nil
	}
	return nil, errors.Errorf("unknown source %q", v.Source)
}

// OptionsFor maps a view definition onto pipeline options.
func OptionsFor(v config.View) Options {
	col := func(p *int) int {
		if p == nil {
			return extract.None
		}
		return *p
	}
	fields := extract.NewFieldMap()
	fields.ImageName = col(v.ImageNameColumn)
	fields.Name = col(v.NameColumn)
	fields.Value = col(v.ValueColumn)
	fields.Category = col(v.CategoryColumn)

	title := v.Title
	if title == "" {
		title = v.Name
	}
	return Options{
		Name:        v.Name,
		Title:       title,
		Normalize:   sheets.NormalizeOptions{StartRow: v.StartRow, RequiredColumns: v.RequiredColumns},
		Fields:      fields,
		Aggregation: v.AggregationPolicy(),
		TopN:        v.TopN,
	}
}

// Registry holds one pipeline per configured view. Pipelines share no state.
type Registry struct {
	pipelines map[string]*Pipeline
	order     []string
}

func NewRegistry() *Registry {
	return &Registry{pipelines: map[string]*Pipeline{}}
}

// Build creates a registry from view definitions.
func Build(ctx context.Context, views []config.View, d Deps) (*Registry, error) {
	r := NewRegistry()
	for _, v := range views {
		src, err := SourceFor(ctx, v, d)
		if err != nil {
			return nil, errors.Wrapf(err, "view %s", v.Name)
		}
		opts := OptionsFor(v)
		if d.Timeout > 0 {
			opts.Timeout = (apiRetryCalls + 1) * d.Timeout
		}
		r.Add(New(opts, src))
	}
	return r, nil
}

func (r *Registry) Add(p *Pipeline) {
	if _, ok := r.pipelines[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.pipelines[p.Name()] = p
}

func (r *Registry) Get(name string) (*Pipeline, bool) {
	p, ok := r.pipelines[name]
	return p, ok
}

// Names returns view names in configuration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// RefreshAll refreshes every view concurrently. One view failing does not stop the
// others; the result maps each failed view to its error.
func (r *Registry) RefreshAll(ctx context.Context) map[string]error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = map[string]error{}
	)
	g.SetLimit(4)
	for _, name := range r.order {
		p := r.pipelines[name]
		g.Go(func() error {
			if _, err := p.Refresh(ctx); err != nil {
				mu.Lock()
				failed[p.Name()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for n := range failed {
			names = append(names, n)
		}
		sort.Strings(names)
		log.WithField("failed", names).Warnf("refreshed %d views, %d failed", len(r.order), len(failed))
	} else {
		log.Debugf("refreshed %d views", len(r.order))
	}
	return failed
}
