package sheet

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// MaxSheetNameLength is the longest worksheet name Excel accepts.
const MaxSheetNameLength = 31

// Sheet is one worksheet to write.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]string
}

// SafeSheetName strips characters Excel rejects in worksheet names and
// truncates the result to MaxSheetNameLength runes.
func SafeSheetName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), "'")

	if utf8.RuneCountInString(cleaned) > MaxSheetNameLength {
		cleaned = string([]rune(cleaned)[:MaxSheetNameLength])
	}
	if strings.TrimSpace(cleaned) == "" {
		return "Sheet"
	}
	return cleaned
}

// uniqueSheetName returns a safe name not yet in used. Excel compares sheet
// names case-insensitively.
func uniqueSheetName(name string, used map[string]bool) string {
	base := SafeSheetName(name)
	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		runes := []rune(base)
		if keep := MaxSheetNameLength - len(suffix); len(runes) > keep {
			runes = runes[:keep]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// WriteWorkbook writes one worksheet per entry in sheets, in order,
// replacing any existing file at path. The file is written to a temporary
// name first and renamed into place.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	defaultSheet := f.GetSheetName(0)
	used := make(map[string]bool, len(sheets))

	for i, s := range sheets {
		name := uniqueSheetName(s.Name, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}

		if err := writeRows(f, name, s.Header, s.Rows); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".listsync-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheetName string, header []string, rows [][]string) error {
	write := func(rowNum int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d of %q: %w", rowNum, sheetName, err)
		}
		return nil
	}

	if err := write(1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := write(i+2, row); err != nil {
			return err
		}
	}
	return nil
}
