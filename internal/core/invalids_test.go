package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestInvalidStore(t *testing.T) {
	s := NewInvalidStore()
	s.Add("B", InvalidRecord{Email: "b1", Reason: "bad"})
	s.Add("A", InvalidRecord{Email: "a1", Reason: "bad"}, InvalidRecord{Email: "a2", Reason: "worse"})
	s.Add("A")
	assert.Equal(t, 3, s.Count())

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].Binding)
	assert.Equal(t, "A", snap[1].Binding)
	assert.Equal(t, "a2", snap[1].Records[1].Email)

	// Snapshot is a copy.
	snap[1].Records[0].Email = "changed"
	assert.Equal(t, "a1", s.Snapshot()[1].Records[0].Email)

	// Reset replaces one binding only.
	s.Reset("A")
	s.Add("A", InvalidRecord{Email: "a3"})
	snap = s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, []InvalidRecord{{Email: "a3"}}, snap[1].Records)

	s.Reset("B")
	snap = s.Snapshot()
	require.Len(t, snap, 1, "bindings without records are not exported")
	assert.Equal(t, "A", snap[0].Binding)
}

func TestExportInvalids_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid_emails.xlsx")
	var lines []string
	logf := func(format string, args ...any) { lines = append(lines, format) }

	err := ExportInvalids(NewInvalidStore(), path, logf)
	assert.ErrorIs(t, err, ErrNothingToExport)
	assert.Equal(t, []string{"Warning: no invalid emails to export"}, lines)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no file should be written")
}

func TestExportInvalids_SheetPerBinding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid_emails.xlsx")
	store := NewInvalidStore()
	store.Add("Newsletter", InvalidRecord{Email: "x@", Reason: "Invalid Email Address"})
	store.Add("Events/2024", InvalidRecord{Email: "y@", Reason: "Invalid Email Address"}, InvalidRecord{Email: "z", Reason: "Invalid"})

	var lines []string
	logf := func(format string, args ...any) { lines = append(lines, format) }
	require.NoError(t, ExportInvalids(store, path, logf))
	require.Len(t, lines, 1)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Newsletter", "Events2024"}, f.GetSheetList())

	rows, err := f.GetRows("Events2024")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Email", "Reason"},
		{"y@", "Invalid Email Address"},
		{"z", "Invalid"},
	}, rows)
}
