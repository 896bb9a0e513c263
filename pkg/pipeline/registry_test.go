package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"misdash/pkg/config"
	"misdash/pkg/extract"
	"misdash/pkg/sheets"
)

func TestOptionsFor(t *testing.T) {
	opts := OptionsFor(config.View{
		Name:            "pending",
		StartRow:        9,
		RequiredColumns: []int{0, 1},
		NameColumn:      intp(3),
		ValueColumn:     intp(1),
	})
	assert.Equal(t, "pending", opts.Title)
	assert.Equal(t, 9, opts.Normalize.StartRow)
	assert.Equal(t, []int{0, 1}, opts.Normalize.RequiredColumns)
	assert.Equal(t, extract.FieldMap{ImageName: extract.None, Name: 3, Value: 1, Category: extract.None}, opts.Fields)
	assert.Equal(t, config.AggregateNone, opts.Aggregation)
}

func TestSourceFor(t *testing.T) {
	d := Deps{Fetcher: sheets.NewFetcher(nil, "")}

	src, err := SourceFor(context.Background(), config.View{Source: config.SourceGviz, SpreadsheetID: "id", Sheet: "S"}, d)
	require.NoError(t, err)
	assert.IsType(t, &sheets.GvizSource{}, src)

	src, err = SourceFor(context.Background(), config.View{Source: config.SourceMock, MockColumns: []string{"A"}}, d)
	require.NoError(t, err)
	table, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, table.Width())

	_, err = SourceFor(context.Background(), config.View{Source: "ftp"}, d)
	assert.Error(t, err)

	d.APIOptions = []option.ClientOption{option.WithoutAuthentication()}
	d.Timeout = 3 * time.Second
	src, err = SourceFor(context.Background(), config.View{Source: config.SourceAPI, SpreadsheetID: "id", Sheet: "S"}, d)
	require.NoError(t, err)
	api, ok := src.(*sheets.APISource)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, api.Timeout)
	assert.Equal(t, apiRetryCalls*3*time.Second, api.RetryBudget)
}

func TestNewDeps(t *testing.T) {
	d := NewDeps(&config.Configuration{HTTPTimeout: time.Second, ExportURL: "http://sheets.test/d"})
	assert.Equal(t, "http://sheets.test/d/id/gviz/tq?sheet=S&tqx=out%3Ajson", d.Fetcher.URL("id", "S"))
	assert.Empty(t, d.APIOptions)
	assert.Equal(t, time.Second, d.Timeout)

	d = NewDeps(&config.Configuration{HTTPTimeout: time.Second, GoogleCredentials: "/tmp/creds.json"})
	assert.Len(t, d.APIOptions, 1)
}

func TestBuildAndRefreshAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sheet") == "Broken" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`/*O_o*/
google.visualization.Query.setResponse({"status":"ok","table":{"cols":[{"id":"A","label":"Name","type":"string"}],"rows":[{"c":[{"v":"Ann"}]},{"c":[{"v":"Bob"}]}]}});`))
	}))
	defer srv.Close()

	views := []config.View{
		{Name: "people", Source: config.SourceGviz, SpreadsheetID: "abc", Sheet: "People", NameColumn: intp(0)},
		{Name: "broken", Source: config.SourceGviz, SpreadsheetID: "abc", Sheet: "Broken"},
		{Name: "demo", Source: config.SourceMock, MockColumns: []string{"Name"}, MockRows: [][]any{{"Cy"}}},
	}
	reg, err := Build(context.Background(), views, Deps{Fetcher: sheets.NewFetcher(srv.Client(), srv.URL)})
	require.NoError(t, err)
	assert.Equal(t, []string{"people", "broken", "demo"}, reg.Names())

	failed := reg.RefreshAll(context.Background())
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed["broken"], sheets.ErrFetchFailed))

	people, ok := reg.Get("people")
	require.True(t, ok)
	assert.Equal(t, StatusReady, people.State().Status)
	assert.Len(t, people.State().Rows, 2)
	assert.Equal(t, "Bob", people.State().Rows[1].Derived.Name)

	broken, _ := reg.Get("broken")
	assert.Equal(t, StatusError, broken.State().Status)

	demo, _ := reg.Get("demo")
	assert.Len(t, demo.State().Rows, 1)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestBuildSetsRefreshTimeout(t *testing.T) {
	views := []config.View{{Name: "demo", Source: config.SourceMock, MockColumns: []string{"A"}}}

	reg, err := Build(context.Background(), views, Deps{Timeout: time.Second})
	require.NoError(t, err)
	p, ok := reg.Get("demo")
	require.True(t, ok)
	assert.Equal(t, (apiRetryCalls+1)*time.Second, p.Options().Timeout)

	reg, err = Build(context.Background(), views, Deps{})
	require.NoError(t, err)
	p, _ = reg.Get("demo")
	assert.Zero(t, p.Options().Timeout)
}
