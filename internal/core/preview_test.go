package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/listsync/internal/config"
)

func TestPreview(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "p.csv")
	content := "E-mail,Name,Surname,City\n" +
		"a@x.com,Ann,Lee,Paris\n" +
		"nan,Bob,,\n" +
		"A@X.com ,Ann,,\n" +
		"b@x.com,,,\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	svc := NewService([]config.Binding{{Name: "P", ListID: "L", File: file}}, nil, Options{BatchSize: 2})

	resp, err := svc.Preview(0)
	require.NoError(t, err)

	assert.Equal(t, "E-mail", resp.EmailColumn)
	assert.Equal(t, PreviewSummary{
		TotalRows:       4,
		Subscribers:     3,
		MissingEmail:    1,
		DuplicateInFile: 1,
		Batches:         2,
	}, resp.Summary)
	assert.Equal(t, []int{3}, resp.MissingEmailRows)
	require.Len(t, resp.DuplicateSamples, 1)
	assert.Equal(t, DuplicatePreview{Email: "a@x.com", LineNumbers: []int{2, 4}}, resp.DuplicateSamples[0])
	require.Len(t, resp.Samples, 3)
	assert.Equal(t, "Ann Lee", resp.Samples[0].Subscriber.Name)
}

func TestPreview_Errors(t *testing.T) {
	dir := t.TempDir()
	noEmail := filepath.Join(dir, "n.csv")
	require.NoError(t, os.WriteFile(noEmail, []byte("Name\nAnn\n"), 0o644))

	svc := NewService([]config.Binding{
		{Name: "Missing", File: filepath.Join(dir, "missing.csv")},
		{Name: "NoEmail", File: noEmail},
	}, nil, Options{})

	_, err := svc.Preview(0)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = svc.Preview(1)
	assert.ErrorIs(t, err, ErrNoEmailColumn)

	_, err = svc.Preview(2)
	assert.ErrorIs(t, err, ErrUnknownBinding)
}
