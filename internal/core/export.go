package core

import (
	"fmt"

	"github.com/JonMunkholm/listsync/internal/sheet"
)

var invalidsHeader = []string{"Email", "Reason"}

// ExportInvalids writes one worksheet per binding with rejected addresses
// to path, replacing the previous file. With nothing to export it logs a
// warning through logf, leaves the filesystem alone and returns
// ErrNothingToExport.
func ExportInvalids(store *InvalidStore, path string, logf func(format string, args ...any)) error {
	snap := store.Snapshot()
	if len(snap) == 0 {
		logf("Warning: no invalid emails to export")
		return ErrNothingToExport
	}

	sheets := make([]sheet.Sheet, 0, len(snap))
	total := 0
	for _, b := range snap {
		rows := make([][]string, len(b.Records))
		for i, r := range b.Records {
			rows[i] = []string{r.Email, r.Reason}
		}
		sheets = append(sheets, sheet.Sheet{Name: b.Binding, Header: invalidsHeader, Rows: rows})
		total += len(rows)
	}

	if err := sheet.WriteWorkbook(path, sheets); err != nil {
		logf("Export failed: %v", err)
		return fmt.Errorf("export invalids: %w", err)
	}

	logf("Exported %d invalid emails across %d lists to %s", total, len(sheets), path)
	return nil
}
