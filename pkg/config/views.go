package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const (
	SourceGviz = "gviz"
	SourceAPI  = "api"
	SourceMock = "mock"

	AggregateNone = "none"
	AggregateMax  = "max"
	AggregateSum  = "sum"
)

// Column positions are 0-based and optional; a nil pointer means the view has no such
// column.
type View struct {
	Name          string `toml:"name" validate:"required,excludesall=/?#"`
	Title         string `toml:"title,omitempty"`
	Source        string `toml:"source" validate:"required,oneof=gviz api mock"`
	SpreadsheetID string `toml:"spreadsheet_id,omitempty" validate:"required_unless=Source mock"`
	Sheet         string `toml:"sheet,omitempty"`

	// StartRow is the 1-based row where data begins (e.g. 9 when a title block sits above).
	StartRow        int   `toml:"start_row,omitempty" validate:"gte=0"`
	RequiredColumns []int `toml:"required_columns,omitempty" validate:"dive,gte=0"`

	ImageNameColumn *int `toml:"image_name_column,omitempty" validate:"omitempty,gte=0"`
	NameColumn      *int `toml:"name_column,omitempty" validate:"omitempty,gte=0"`
	ValueColumn     *int `toml:"value_column,omitempty" validate:"omitempty,gte=0"`
	CategoryColumn  *int `toml:"category_column,omitempty" validate:"omitempty,gte=0"`

	Aggregation string `toml:"aggregation,omitempty" validate:"omitempty,oneof=none max sum"`
	TopN        int    `toml:"top_n,omitempty" validate:"gte=0"`

	// Mock views serve these literal rows.
	MockColumns []string `toml:"mock_columns,omitempty"`
	MockRows    [][]any  `toml:"mock_rows,omitempty"`
}

func (v View) AggregationPolicy() string {
	if v.Aggregation == "" {
		return AggregateNone
	}
	return v.Aggregation
}

type viewsFile struct {
	Views []View `toml:"view" validate:"dive"`
}

// ViewStore is the TOML file holding the dashboard's view definitions.
type ViewStore struct {
	Filename string
	store    viewsFile
}

var validate = validator.New()

// Save writes the current views out to the toml file.
func (c *ViewStore) Save() error {
	b, err := toml.Marshal(c.store)
	if err != nil {
		return err
	}
	return os.WriteFile(c.Filename, b, 0644)
}

// Load reads and validates the views from the toml file.
func (c *ViewStore) Load() error {
	b, err := os.ReadFile(c.Filename)
	if err != nil {
		return err
	}
	return c.decode(b)
}

func (c *ViewStore) decode(b []byte) error {
	var f viewsFile
	if err := toml.Unmarshal(b, &f); err != nil {
		return errors.Wrapf(err, "parse %s", c.Filename)
	}
	if err := validateViews(f.Views); err != nil {
		return errors.Wrapf(err, "invalid views in %s", c.Filename)
	}
	c.store = f
	return nil
}

func (c *ViewStore) Views() []View {
	return append([]View(nil), c.store.Views...)
}

func (c *ViewStore) SetViews(views []View) error {
	if err := validateViews(views); err != nil {
		return err
	}
	c.store.Views = append([]View(nil), views...)
	return nil
}

func validateViews(views []View) error {
	seen := map[string]bool{}
	for i := range views {
		if err := validate.Struct(views[i]); err != nil {
			return errors.Wrapf(err, "view %d", i)
		}
		if seen[views[i].Name] {
			return errors.Errorf("duplicate view name %q", views[i].Name)
		}
		seen[views[i].Name] = true
	}
	return nil
}

// NewViewStore loads filename, creating an empty one when it does not exist yet.
func NewViewStore(filename string) (*ViewStore, error) {
	c := &ViewStore{Filename: filename}
	if err := c.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := c.Save(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseViews decodes view definitions from TOML text.
func ParseViews(b []byte) ([]View, error) {
	c := &ViewStore{Filename: "<inline>"}
	if err := c.decode(b); err != nil {
		return nil, err
	}
	return c.Views(), nil
}
