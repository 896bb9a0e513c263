package extract

import (
	"strings"

	"misdash/pkg/sheets"
)

// None marks an unused column in a FieldMap.
const None = -1

// FieldMap says which positional columns feed the derived fields.
type FieldMap struct {
	ImageName int
	Name      int
	Value     int
	Category  int
}

func NewFieldMap() FieldMap {
	return FieldMap{ImageName: None, Name: None, Value: None, Category: None}
}

// Derived holds view-layer conveniences computed from a row. Never persist these.
type Derived struct {
	ImageURL   string   `json:"imageUrl,omitempty"`
	Candidates []string `json:"imageCandidates,omitempty"`
	Name       string   `json:"name,omitempty"`
	Initials   string   `json:"initials"`
	Value      float64  `json:"value"`
	Category   string   `json:"category,omitempty"`
}

func Derive(r sheets.Row, m FieldMap) Derived {
	var d Derived
	if m.ImageName != None {
		var raw string
		raw, d.Name = SplitCombined(r.String(m.ImageName))
		if raw != "" {
			d.ImageURL = ResolveImageURL(raw)
			d.Candidates = ImageCandidates(raw)
		}
	}
	if d.Name == "" && m.Name != None {
		d.Name = strings.TrimSpace(r.String(m.Name))
	}
	d.Initials = Initials(d.Name)
	if m.Value != None {
		d.Value = Coerce(r.Get(m.Value))
	}
	if m.Category != None {
		d.Category = strings.TrimSpace(r.String(m.Category))
	}
	return d
}
