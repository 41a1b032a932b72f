package core

import (
	"slices"
	"strings"

	"github.com/JonMunkholm/listsync/internal/remote"
)

// Identity columns are mapped onto the subscriber itself rather than
// sent as custom fields.
const (
	nameColumn    = "Name"
	surnameColumn = "Surname"
)

// DetectEmailColumn returns the first column whose name contains "mail",
// case-insensitively. Later matches are ignored.
func DetectEmailColumn(columns []string) (string, error) {
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "mail") {
			return c, nil
		}
	}
	return "", ErrNoEmailColumn
}

// Clean trims a cell. Spreadsheet exports write missing numbers as "nan",
// which is treated as empty.
func Clean(value string) string {
	s := strings.TrimSpace(value)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

// NormalizeRow maps a spreadsheet row onto a subscriber. It reports false
// when the row has no email, in which case the row is skipped and is not a
// failure. values may be shorter than columns; missing cells are empty.
func NormalizeRow(columns, values []string, emailCol string, resubscribe bool) (remote.Subscriber, bool) {
	cell := func(i int) string {
		if i < len(values) {
			return Clean(values[i])
		}
		return ""
	}

	var (
		email, first, last string
		fields             []remote.CustomField
	)
	for i, col := range columns {
		switch col {
		case emailCol:
			email = cell(i)
		case nameColumn:
			first = cell(i)
		case surnameColumn:
			last = cell(i)
		default:
			if v := cell(i); v != "" {
				fields = append(fields, remote.CustomField{Key: col, Value: v})
			}
		}
	}

	if email == "" {
		return remote.Subscriber{}, false
	}

	return remote.Subscriber{
		EmailAddress:   email,
		Name:           strings.TrimSpace(first + " " + last),
		CustomFields:   fields,
		Resubscribe:    resubscribe,
		ConsentToTrack: "Yes",
	}, true
}

// Batches splits subs into consecutive chunks of at most size elements.
// The chunks share subs' backing array.
func Batches[T any](subs []T, size int) [][]T {
	if size <= 0 {
		size = remote.MaxBatchSize
	}
	batches := make([][]T, 0, (len(subs)+size-1)/size)
	for chunk := range slices.Chunk(subs, size) {
		batches = append(batches, chunk)
	}
	return batches
}

// NormalizeEmail is the comparison key for addresses: trimmed and lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UnsubscribeTargets returns the remote active addresses that are not in
// the spreadsheet, sorted. Both sets must hold normalized addresses.
func UnsubscribeTargets(remoteActive, sheetEmails map[string]struct{}) []string {
	var targets []string
	for email := range remoteActive {
		if _, ok := sheetEmails[email]; !ok {
			targets = append(targets, email)
		}
	}
	slices.Sort(targets)
	return targets
}
