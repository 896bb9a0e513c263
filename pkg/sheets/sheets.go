package sheets

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"misdash/pkg/metrics"
)

// APISource reads a private sheet through the Sheets API with a service account.
// It produces the same Table shape as the gviz export so the rest of the pipeline
// does not care where rows came from.
type APISource struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string

	MaxRetries int
	MaxBackoff time.Duration
	// Timeout bounds each API call, RetryBudget the whole Fetch including backoff.
	Timeout     time.Duration
	RetryBudget time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewAPISource(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*APISource, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create sheets client")
	}
	return &APISource{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		MaxRetries:    15,
		MaxBackoff:    60 * time.Second,
		Timeout:       20 * time.Second,
		RetryBudget:   2 * time.Minute,
		sleep:         sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *APISource) Fetch(ctx context.Context) (*Table, error) {
	if s.RetryBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RetryBudget)
		defer cancel()
	}
	var resp *sheets.ValueRange
	var err error
	for attempt := 0; attempt < s.MaxRetries; attempt++ {
		resp, err = s.get(ctx)
		if err == nil {
			break
		}
		// Rate limited: back off and retry
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && (gErr.Code == 429 || gErr.Code == 403) {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			if backoff > s.MaxBackoff {
				backoff = s.MaxBackoff
			}
			log.Printf("Rate limited by Google Sheets API, retrying in %v...", backoff)
			if serr := s.sleep(ctx, backoff); serr != nil {
				err = serr
				break
			}
			continue
		}
		break
	}
	if err != nil {
		metrics.SheetFetches.WithLabelValues("api", "fetch_failed").Inc()
		status := 0
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			status = gErr.Code
		}
		return nil, &FetchError{Status: status, Err: err}
	}
	metrics.SheetFetches.WithLabelValues("api", "ok").Inc()
	return valuesToTable(resp.Values), nil
}

func (s *APISource) get(ctx context.Context) (*sheets.ValueRange, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName).
		ValueRenderOption("FORMATTED_VALUE").Context(ctx).Do()
}

// valuesToTable builds a Table whose columns are named like sheet columns (A, B, ...).
func valuesToTable(values [][]interface{}) *Table {
	t := &Table{}
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
		rr := RawRow{C: make([]*Cell, len(row))}
		for i, v := range row {
			if v == nil {
				continue
			}
			f := Stringify(v)
			rr.C[i] = &Cell{V: v, F: &f}
		}
		t.Rows = append(t.Rows, rr)
	}
	for i := 0; i < width; i++ {
		t.Columns = append(t.Columns, Column{ID: columnLetter(i), Kind: "string"})
	}
	return t
}

func columnLetter(i int) string {
	s := ""
	for i >= 0 {
		s = string(rune('A'+i%26)) + s
		i = i/26 - 1
	}
	return s
}
