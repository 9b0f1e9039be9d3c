package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"focusflow-go/internal/types"
)

var header = []string{
	"Job ID", "Title", "URL", "Status", "Meeting Date", "Created",
	"Transcript Chars", "Summary Chars", "Error",
}

// Write renders the job collection as an xlsx workbook, one row per job
// in the order given.
func Write(jobs []*types.Job, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, j := range jobs {
		values := []any{
			j.ID, j.Title, j.URL, string(j.Status), j.MeetingDate, j.CreatedLabel,
			len(j.Transcript), len(j.Summary), j.Error,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
