package core

import (
	"fmt"
	"time"

	"github.com/JonMunkholm/listsync/internal/config"
	"github.com/JonMunkholm/listsync/internal/remote"
	"github.com/JonMunkholm/listsync/internal/sheet"
)

// PreviewSummary contains the summary counts for a binding preview.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	Subscribers     int `json:"subscribers"`
	MissingEmail    int `json:"missingEmail"`
	DuplicateInFile int `json:"duplicateInFile"`
	Batches         int `json:"batches"`
}

// RowPreview is one subscriber as it would be sent.
type RowPreview struct {
	LineNumber int               `json:"lineNumber"`
	Subscriber remote.Subscriber `json:"subscriber"`
}

// DuplicatePreview lists the lines sharing one address.
type DuplicatePreview struct {
	Email       string `json:"email"`
	LineNumbers []int  `json:"lineNumbers"`
}

// PreviewResponse is the read-only analysis of a binding's spreadsheet.
type PreviewResponse struct {
	Binding          string             `json:"binding"`
	Columns          []string           `json:"columns"`
	EmailColumn      string             `json:"emailColumn"`
	Summary          PreviewSummary     `json:"summary"`
	Samples          []RowPreview       `json:"samples"`
	MissingEmailRows []int              `json:"missingEmailRows"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// Sample limits
const (
	maxRowSamples       = 10
	maxMissingSamples   = 20
	maxDuplicateSamples = 10
)

// Preview reads and normalizes the spreadsheet of the binding at index
// without contacting the remote service. Duplicates are counted the way
// the import endpoint reports them: repeated addresses within one file.
func (s *Service) Preview(index int) (*PreviewResponse, error) {
	if index < 0 || index >= len(s.bindings) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownBinding, index)
	}
	return previewBinding(s.bindings[index], s.opts.BatchSize)
}

func previewBinding(b config.Binding, batchSize int) (*PreviewResponse, error) {
	startTime := time.Now()

	table, err := sheet.Read(b.File)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.Name, err)
	}

	emailCol, err := DetectEmailColumn(table.Columns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name, err)
	}

	resp := &PreviewResponse{
		Binding:     b.Name,
		Columns:     table.Columns,
		EmailColumn: emailCol,
		Summary:     PreviewSummary{TotalRows: len(table.Rows)},
	}

	seen := make(map[string][]int)
	var order []string
	for i, row := range table.Rows {
		// Line numbers are 1-indexed and count the header. Dropped blank
		// rows are not accounted for.
		lineNum := i + 2

		sub, ok := NormalizeRow(table.Columns, row, emailCol, false)
		if !ok {
			resp.Summary.MissingEmail++
			if len(resp.MissingEmailRows) < maxMissingSamples {
				resp.MissingEmailRows = append(resp.MissingEmailRows, lineNum)
			}
			continue
		}

		resp.Summary.Subscribers++
		if len(resp.Samples) < maxRowSamples {
			resp.Samples = append(resp.Samples, RowPreview{LineNumber: lineNum, Subscriber: sub})
		}

		key := NormalizeEmail(sub.EmailAddress)
		if _, dup := seen[key]; !dup {
			order = append(order, key)
		}
		seen[key] = append(seen[key], lineNum)
	}

	for _, key := range order {
		lines := seen[key]
		if len(lines) < 2 {
			continue
		}
		resp.Summary.DuplicateInFile += len(lines) - 1 // Count extra occurrences
		if len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{Email: key, LineNumbers: lines})
		}
	}

	if batchSize <= 0 {
		batchSize = remote.MaxBatchSize
	}
	resp.Summary.Batches = (resp.Summary.Subscribers + batchSize - 1) / batchSize
	resp.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return resp, nil
}
