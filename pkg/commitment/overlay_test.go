package commitment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameKey(t *testing.T) {
	assert.Equal(t, "jane doe", NameKey("  Jane   DOE "))
	assert.Equal(t, "", NameKey("   "))
}

func TestDisplayPrecedence(t *testing.T) {
	o := NewOverlay()
	o.replaceSaved([]Person{{Name: "Jane Doe", Fields: map[string]string{"goal": "10"}}})
	key := NameKey("Jane Doe")

	assert.Equal(t, "10", o.Display(key, "goal"))
	assert.Equal(t, "", o.Display(key, "other"))
	assert.Equal(t, "", o.Display("nobody", "goal"))

	o.Select(Subject{Key: key, Name: "Jane Doe"})
	require.NoError(t, o.SetPending(key, "goal", "12"))
	assert.Equal(t, "12", o.Display(key, "goal"))

	// an explicit empty edit still wins over the saved value
	require.NoError(t, o.SetPending(key, "goal", ""))
	assert.Equal(t, "", o.Display(key, "goal"))
}

func TestSetPendingRequiresSelection(t *testing.T) {
	o := NewOverlay()
	err := o.SetPending("k", "goal", "1")
	assert.ErrorIs(t, err, ErrNotSelected)

	o.Select(Subject{Key: "k"})
	assert.NoError(t, o.SetPending("k", "goal", "1"))

	o.Deselect("k")
	assert.ErrorIs(t, o.SetPending("k", "goal", "2"), ErrNotSelected)
	assert.Equal(t, "1", o.Display("k", "goal"))
}

func TestFieldView(t *testing.T) {
	o := NewOverlay()
	o.replaceSaved([]Person{{Name: "Ann", Fields: map[string]string{"goal": "5"}}})

	fv := o.Field("ann", "goal")
	assert.Equal(t, FieldView{Value: "5", Saved: "5"}, fv)

	o.Select(Subject{Key: "ann", Name: "Ann"})
	require.NoError(t, o.SetPending("ann", "goal", "7"))
	assert.Equal(t, FieldView{Value: "7", Saved: "5", Editable: true, Dirty: true}, o.Field("ann", "goal"))

	// deselected rows show the saved value, read-only
	o.Deselect("ann")
	assert.Equal(t, FieldView{Value: "5", Saved: "5", Dirty: true}, o.Field("ann", "goal"))
}

func TestBatch(t *testing.T) {
	o := NewOverlay()
	o.SelectAll([]Subject{{Key: "b", Name: "Bob"}, {Key: "a", Name: "Ann"}, {Key: "c", Name: "Cy"}})
	require.NoError(t, o.SetPending("a", "goal", "3"))
	require.NoError(t, o.SetPending("a", "note", ""))
	require.NoError(t, o.SetPending("b", "goal", "  "))
	// c selected with no edits

	batch := o.Batch()
	require.Len(t, batch, 1)
	assert.Equal(t, "a", batch[0].Key)
	assert.Equal(t, "Ann", batch[0].Name)
	assert.Equal(t, map[string]string{"goal": "3", "note": ""}, batch[0].Fields)

	// pending edits on an unselected row are not submitted
	o.Deselect("a")
	assert.Empty(t, o.Batch())
}

func TestRecordJSON(t *testing.T) {
	b, err := json.Marshal(Record{Key: "ann", Name: "Ann", Fields: map[string]string{"goal": "3"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ann","goal":"3"}`, string(b))
}

func TestReset(t *testing.T) {
	o := NewOverlay()
	o.Select(Subject{Key: "a"})
	require.NoError(t, o.SetPending("a", "goal", "3"))
	o.Reset()
	assert.False(t, o.Selected("a"))
	assert.Equal(t, "", o.Display("a", "goal"))
	assert.Empty(t, o.Batch())
}

func TestClearSelectionKeepsEdits(t *testing.T) {
	o := NewOverlay()
	o.SelectAll([]Subject{{Key: "a", Name: "A"}, {Key: "b", Name: "B"}})
	require.NoError(t, o.SetPending("a", "goal", "3"))
	o.ClearSelection()

	assert.False(t, o.Selected("a"))
	assert.False(t, o.Selected("b"))
	assert.ErrorIs(t, o.SetPending("b", "goal", "1"), ErrNotSelected)
	assert.Empty(t, o.Batch())

	o.Select(Subject{Key: "a", Name: "A"})
	assert.Equal(t, "3", o.Display("a", "goal"))
	require.Len(t, o.Batch(), 1)
}

func TestEntries(t *testing.T) {
	o := NewOverlay()
	o.replaceSaved([]Person{{Name: "Bob", Fields: map[string]string{"goal": "1"}}})
	o.Select(Subject{Key: "ann", Name: "Ann"})
	require.NoError(t, o.SetPending("ann", "note", "x"))

	entries := o.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ann", entries[0].Key)
	assert.True(t, entries[0].Selected)
	assert.Equal(t, "x", entries[0].Fields["note"].Value)
	assert.Equal(t, "Bob", entries[1].Name)
	assert.Equal(t, "1", entries[1].Fields["goal"].Saved)
}

func TestApplySubmitted(t *testing.T) {
	o := NewOverlay()
	o.replaceSaved([]Person{{Name: "Ann", Fields: map[string]string{"goal": "5", "note": "keep"}}})
	o.Select(Subject{Key: "ann", Name: "Ann"})
	require.NoError(t, o.SetPending("ann", "goal", "8"))
	require.NoError(t, o.SetPending("ann", "note", ""))

	batch := o.Batch()
	// edited again while the submission was in flight
	require.NoError(t, o.SetPending("ann", "goal", "9"))
	o.applySubmitted(batch)

	assert.False(t, o.Selected("ann"))
	fv := o.Field("ann", "goal")
	assert.Equal(t, "8", fv.Saved)
	assert.True(t, fv.Dirty)
	assert.Equal(t, "9", o.Display("ann", "goal"))

	// empty submitted values never overwrite saved ones
	assert.Equal(t, "keep", o.Display("ann", "note"))
	assert.False(t, o.Field("ann", "note").Dirty)
}
