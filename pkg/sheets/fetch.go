package sheets

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"misdash/pkg/metrics"
)

const DefaultExportURL = "https://docs.google.com/spreadsheets/d/"

// Fetcher issues GETs against the spreadsheet tabular-export (gviz) endpoint.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

func NewFetcher(client *http.Client, baseURL string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultExportURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Fetcher{client: client, baseURL: baseURL}
}

func (f *Fetcher) URL(spreadsheetID, sheet string) string {
	q := url.Values{}
	q.Set("tqx", "out:json")
	q.Set("sheet", sheet)
	return f.baseURL + url.PathEscape(spreadsheetID) + "/gviz/tq?" + q.Encode()
}

// FetchText returns the raw response body. Any failure is a *FetchError.
func (f *Fetcher) FetchText(ctx context.Context, spreadsheetID, sheet string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(spreadsheetID, sheet), nil)
	if err != nil {
		return "", &FetchError{Err: errors.Wrap(err, "build request")}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{Status: resp.StatusCode, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", &FetchError{Status: resp.StatusCode, Err: errors.New("empty body")}
	}
	return string(b), nil
}

// GvizSource reads one sheet of a public spreadsheet through the export endpoint.
type GvizSource struct {
	Fetcher       *Fetcher
	SpreadsheetID string
	Sheet         string
}

func (s *GvizSource) Fetch(ctx context.Context) (*Table, error) {
	text, err := s.Fetcher.FetchText(ctx, s.SpreadsheetID, s.Sheet)
	if err != nil {
		metrics.SheetFetches.WithLabelValues("gviz", "fetch_failed").Inc()
		log.WithFields(log.Fields{"sheet": s.Sheet}).Warnf("gviz fetch: %v", err)
		return nil, err
	}
	t, err := ParseEnvelope(text)
	if err != nil {
		metrics.SheetFetches.WithLabelValues("gviz", "invalid_format").Inc()
		log.WithFields(log.Fields{"sheet": s.Sheet}).Warnf("gviz parse: %v", err)
		return nil, err
	}
	metrics.SheetFetches.WithLabelValues("gviz", "ok").Inc()
	return t, nil
}
