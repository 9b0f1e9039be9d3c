package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"focusflow-go/internal/types"
)

func TestWrite(t *testing.T) {
	jobs := []*types.Job{
		{
			ID:           "abc12345",
			Title:        "Standup",
			URL:          "https://example.com/a.mp3",
			Status:       types.StatusCompleted,
			MeetingDate:  "2025-09-25",
			CreatedLabel: "2025-09-25 10:00:00",
			Transcript:   "hello",
			Summary:      "a summary",
		},
		{
			ID:     "def67890",
			URL:    "https://example.com/b.mp3",
			Status: types.StatusError,
			Error:  "ContentTypeError: URL did not resolve to audio content-type (got 'text/html')",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(jobs, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Job ID", rows[0][0])
	assert.Equal(t, "Status", rows[0][3])

	assert.Equal(t, "abc12345", rows[1][0])
	assert.Equal(t, "Standup", rows[1][1])
	assert.Equal(t, "completed", rows[1][3])
	assert.Equal(t, "2025-09-25", rows[1][4])
	assert.Equal(t, "5", rows[1][6])
	assert.Equal(t, "9", rows[1][7])

	assert.Equal(t, "def67890", rows[2][0])
	assert.Equal(t, "error", rows[2][3])
	assert.Contains(t, rows[2][8], "ContentTypeError")
}

func TestWrite_EmptyJobList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(nil, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, header, rows[0])
}
