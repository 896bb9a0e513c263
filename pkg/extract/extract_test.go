package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"misdash/pkg/sheets"
)

func TestSplitCombined(t *testing.T) {
	tests := []struct {
		in       string
		wantURL  string
		wantName string
	}{
		{"https://drive.google.com/file/d/ABC123/view,Jane Doe", "https://drive.google.com/file/d/ABC123/view", "Jane Doe"},
		{`"https://x.test/a.png,Jane Doe"`, "https://x.test/a.png", "Jane Doe"},
		{"https://x.test/a.png, Doe, Jane", "https://x.test/a.png", "Doe, Jane"},
		{"https://x.test/a.png", "https://x.test/a.png", ""},
		{"Jane Doe", "", "Jane Doe"},
		{`"Jane Doe"`, "", "Jane Doe"},
		{"", "", ""},
		{",Jane", "", "Jane"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, n := SplitCombined(tt.in)
			assert.Equal(t, tt.wantURL, u)
			assert.Equal(t, tt.wantName, n)
		})
	}
}

func TestDriveFileID(t *testing.T) {
	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"https://drive.google.com/file/d/ABC123/view?usp=sharing", "ABC123", true},
		{"https://drive.google.com/open?id=X_y-9", "X_y-9", true},
		{"https://drive.google.com/uc?export=view&id=QQ1", "QQ1", true},
		{"https://docs.google.com/d/ZZ9/edit", "ZZ9", true},
		{"https://example.com/avatar.png", "", false},
		{"https://lh3.googleusercontent.com/d/QQ1", "QQ1", true},
		{"https://drive.google.com/file/d/ABC123", "ABC123", true},
		{"https://cdn.example.com/d/logo.png", "", false},
		{"https://cdn.example.com/file/d/logo.png", "", false},
	}
	for _, tt := range tests {
		id, ok := DriveFileID(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.wantID, id, tt.in)
	}
}

func TestResolveImageURL(t *testing.T) {
	u, _ := SplitCombined("https://drive.google.com/file/d/ABC123/view,Jane Doe")
	resolved := ResolveImageURL(u)
	assert.Contains(t, resolved, "ABC123")
	assert.Contains(t, resolved, "thumbnail")

	assert.Equal(t, "https://example.com/a.png", ResolveImageURL("https://example.com/a.png"))
	assert.Equal(t, "https://cdn.example.com/d/logo.png", ResolveImageURL("https://cdn.example.com/d/logo.png"))
}

func TestImageCandidates(t *testing.T) {
	orig := "https://drive.google.com/file/d/ABC123/view"
	assert.Equal(t, []string{
		"https://drive.google.com/thumbnail?id=ABC123&sz=w400",
		"https://lh3.googleusercontent.com/d/ABC123",
		"https://drive.google.com/uc?export=view&id=ABC123",
		orig,
	}, ImageCandidates(orig))

	assert.Equal(t, []string{"https://example.com/a.png"}, ImageCandidates("https://example.com/a.png"))
	assert.Nil(t, ImageCandidates("  "))
	assert.Len(t, ImageCandidates("https://lh3.googleusercontent.com/d/ABC123"), 3)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "JD", Initials("jane doe"))
	assert.Equal(t, "JM", Initials("Jane Mary Doe"))
	assert.Equal(t, "Ö", Initials("öz"))
	assert.Equal(t, PlaceholderGlyph, Initials("   "))
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want float64
	}{
		{"percent", "87%", 87},
		{"thousands", "1,234", 1234},
		{"empty", "", 0},
		{"letters", "abc", 0},
		{"absent", nil, 0},
		{"numeric", 42.5, 42.5},
		{"int", 7, 7},
		{"negative", "-3.5 units", -3.5},
		{"two dots", "1.2.3", 0},
		{"bool", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

func TestMaxByKey(t *testing.T) {
	aggs := MaxByKey([]Keyed{{"A", 5}, {"A", 9}, {"A", 3}})
	assert.Equal(t, []Aggregate{{Key: "A", Value: 9, Order: 0}}, aggs)
}

func TestSumByKey(t *testing.T) {
	aggs := SumByKey([]Keyed{{"X", 5}, {"X", 9}, {"Y", 0.1}, {"Y", 0.2}, {"", 100}})
	assert.Equal(t, []Aggregate{{Key: "X", Value: 14, Order: 0}, {Key: "Y", Value: 0.3, Order: 2}}, aggs)
}

func TestTopN(t *testing.T) {
	aggs := MaxByKey([]Keyed{{"A", 1}, {"B", 5}, {"C", 5}, {"D", 3}, {"A", 2}})
	top := TopN(aggs, 3)
	assert.Equal(t, []string{"B", "C", "D"}, []string{top[0].Key, top[1].Key, top[2].Key})
	assert.Len(t, TopN(aggs, 0), 4)
	// input untouched
	assert.Equal(t, "A", aggs[0].Key)
}

func TestDerive(t *testing.T) {
	row := sheets.Row{Cells: map[string]any{
		"col0": "https://drive.google.com/file/d/ABC123/view,Jane Doe",
		"col1": "87%",
		"col2": "Ops",
		"col3": "Fallback Name",
	}}
	m := NewFieldMap()
	m.ImageName, m.Value, m.Category, m.Name = 0, 1, 2, 3

	d := Derive(row, m)
	assert.Equal(t, "Jane Doe", d.Name)
	assert.Equal(t, "JD", d.Initials)
	assert.Equal(t, 87.0, d.Value)
	assert.Equal(t, "Ops", d.Category)
	assert.Contains(t, d.ImageURL, "ABC123")
	assert.Len(t, d.Candidates, 4)

	row.Cells["col0"] = "https://example.com/a.png"
	d = Derive(row, m)
	assert.Equal(t, "Fallback Name", d.Name)
	assert.Equal(t, []string{"https://example.com/a.png"}, d.Candidates)

	d = Derive(row, NewFieldMap())
	assert.Equal(t, Derived{Initials: PlaceholderGlyph}, d)
}
