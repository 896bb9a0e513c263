package commitment

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrNotSelected = errors.New("row is not selected for editing")

// NameKey is the join key between spreadsheet rows and saved commitments. The sheet
// has no row identifier, so two people with the same name share one record.
func NameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Subject identifies an editable row: Key is a row ID or a NameKey, Name is what gets
// submitted.
type Subject struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Record is one entry of a submission batch.
type Record struct {
	Key    string
	Name   string
	Fields map[string]string
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["name"] = r.Name
	return json.Marshal(m)
}

type FieldView struct {
	Value    string `json:"value"`
	Saved    string `json:"saved"`
	Editable bool   `json:"editable"`
	Dirty    bool   `json:"dirty"`
}

type Entry struct {
	Key      string               `json:"key"`
	Name     string               `json:"name"`
	Selected bool                 `json:"selected"`
	Fields   map[string]FieldView `json:"fields"`
}

type fields map[string]string

// Overlay tracks saved (server-acknowledged) and pending (this session) values per
// key and field. Saved values only change through a Gateway round trip.
type Overlay struct {
	mu       sync.Mutex
	saved    map[string]fields
	pending  map[string]fields
	selected map[string]bool
	names    map[string]string
}

func NewOverlay() *Overlay {
	return &Overlay{
		saved:    map[string]fields{},
		pending:  map[string]fields{},
		selected: map[string]bool{},
		names:    map[string]string{},
	}
}

// Display returns pending if the field was touched, else saved, else "".
func (o *Overlay) Display(key, field string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.display(key, field)
}

func (o *Overlay) display(key, field string) string {
	if v, ok := o.pending[key][field]; ok {
		return v
	}
	return o.saved[key][field]
}

// Field is what an input renders: unselected rows show the saved value read-only.
func (o *Overlay) Field(key, field string) FieldView {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.field(key, field)
}

func (o *Overlay) field(key, field string) FieldView {
	saved := o.saved[key][field]
	_, dirty := o.pending[key][field]
	if !o.selected[key] {
		return FieldView{Value: saved, Saved: saved, Dirty: dirty}
	}
	return FieldView{Value: o.display(key, field), Saved: saved, Editable: true, Dirty: dirty}
}

func (o *Overlay) Select(s Subject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selectLocked(s)
}

func (o *Overlay) selectLocked(s Subject) {
	o.selected[s.Key] = true
	if s.Name != "" {
		o.names[s.Key] = s.Name
	}
}

func (o *Overlay) SelectAll(subjects []Subject) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range subjects {
		o.selectLocked(s)
	}
}

// Deselect makes the row read-only again. Its pending edits are kept.
func (o *Overlay) Deselect(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.selected, key)
}

// ClearSelection makes every row read-only. Pending edits are kept.
func (o *Overlay) ClearSelection() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearSelection()
}

func (o *Overlay) clearSelection() {
	o.selected = map[string]bool{}
}

func (o *Overlay) Selected(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected[key]
}

func (o *Overlay) SetPending(key, field, value string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.selected[key] {
		return ErrNotSelected
	}
	if o.pending[key] == nil {
		o.pending[key] = fields{}
	}
	o.pending[key][field] = value
	return nil
}

// Reset drops every pending edit and the selection.
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = map[string]fields{}
	o.clearSelection()
}

// Batch builds the submission for selected rows with edits. Records whose edited
// fields are all empty are left out.
func (o *Overlay) Batch() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	keys := make([]string, 0, len(o.selected))
	for k := range o.selected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Record
	for _, k := range keys {
		p := o.pending[k]
		if len(p) == 0 {
			continue
		}
		empty := true
		rec := Record{Key: k, Name: o.nameOf(k), Fields: make(map[string]string, len(p))}
		for f, v := range p {
			rec.Fields[f] = v
			if strings.TrimSpace(v) != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, rec)
		}
	}
	return out
}

func (o *Overlay) nameOf(key string) string {
	if n := o.names[key]; n != "" {
		return n
	}
	return key
}

// Entries lists every key that has saved values, pending edits or a selection.
func (o *Overlay) Entries() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	seen := map[string]map[string]bool{}
	add := func(k string, fs fields) {
		if seen[k] == nil {
			seen[k] = map[string]bool{}
		}
		for f := range fs {
			seen[k][f] = true
		}
	}
	for k, fs := range o.saved {
		add(k, fs)
	}
	for k, fs := range o.pending {
		add(k, fs)
	}
	for k := range o.selected {
		add(k, nil)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		e := Entry{Key: k, Name: o.nameOf(k), Selected: o.selected[k], Fields: map[string]FieldView{}}
		for f := range seen[k] {
			e.Fields[f] = o.field(k, f)
		}
		out = append(out, e)
	}
	return out
}

// replaceSaved installs the authoritative saved set fetched from the server. The
// server keys by name, so entries held under a row ID take the values listed for
// that row's name, or keep their own when the server has none.
func (o *Overlay) replaceSaved(people []Person) {
	o.mu.Lock()
	defer o.mu.Unlock()
	saved := make(map[string]fields, len(people))
	for _, p := range people {
		k := NameKey(p.Name)
		if k == "" {
			continue
		}
		if saved[k] == nil {
			saved[k] = fields{}
		}
		for f, v := range p.Fields {
			saved[k][f] = v
		}
		if o.names[k] == "" {
			o.names[k] = p.Name
		}
	}
	for k, fs := range o.saved {
		if _, ok := saved[k]; ok {
			continue
		}
		nk := NameKey(o.nameOf(k))
		if nk == k {
			continue
		}
		if srv, ok := saved[nk]; ok {
			fs = srv
		}
		saved[k] = copyFields(fs)
	}
	o.saved = saved
}

func copyFields(fs fields) fields {
	out := make(fields, len(fs))
	for f, v := range fs {
		out[f] = v
	}
	return out
}

// applySubmitted merges an acknowledged batch: non-empty values overwrite saved ones,
// pending values that were submitted unchanged are cleared, and the selection is reset.
func (o *Overlay) applySubmitted(records []Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range records {
		for f, v := range r.Fields {
			if v != "" {
				if o.saved[r.Key] == nil {
					o.saved[r.Key] = fields{}
				}
				o.saved[r.Key][f] = v
			}
			if cur, ok := o.pending[r.Key][f]; ok && cur == v {
				delete(o.pending[r.Key], f)
			}
		}
		if len(o.pending[r.Key]) == 0 {
			delete(o.pending, r.Key)
		}
	}
	o.clearSelection()
}
