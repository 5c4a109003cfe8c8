package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"schoolconsole/internal/model"
	"schoolconsole/internal/timefmt"
)

const sheetName = "Attendance"

// header row index of the student table (1-based).
const tableRow = 4

var columns = []string{"Student ID", "Name", "Class ID", "Status"}

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename returns the download name for a roster export.
func Filename(r model.Roster) string {
	return fmt.Sprintf("attendance-%d-%s.xlsx", r.ScheduleID, r.Date)
}

// WriteRoster renders one roster as a single-sheet workbook.
func WriteRoster(w io.Writer, r model.Roster) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	title := fmt.Sprintf("Session %d", r.ScheduleID)
	if s := r.Session; s != nil {
		if day := timefmt.DayName(s.DayOfWeek); day != "" {
			title += " · " + day
		}
		if span := timefmt.FormatTimeRange(s.StartTime, s.EndTime); span != "" {
			title += " " + span
		}
	}
	cells := map[string]any{
		"A1": title,
		"A2": "Date",
		"B2": r.Date,
	}
	if s := r.Session; s != nil && len(s.TeacherNames) > 0 {
		cells["C2"] = "Teachers"
		cells["D2"] = strings.Join(s.TeacherNames, ", ")
	}
	for cell, v := range cells {
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("export: %s: %w", cell, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: style: %w", err)
	}
	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return fmt.Errorf("export: header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), tableRow)
	if err := f.SetCellStyle(sheetName, "A1", "A1", bold); err != nil {
		return fmt.Errorf("export: style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A4", last, bold); err != nil {
		return fmt.Errorf("export: style: %w", err)
	}

	for i, e := range r.Entries {
		row := tableRow + 1 + i
		status := string(e.AttendanceStatus)
		if e.AttendanceStatus == model.StatusNone {
			status = ""
		}
		values := []any{e.StudentID, e.StudentName, e.ClassID, status}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return fmt.Errorf("export: row %d: %w", row, err)
		}
	}
	_ = f.SetColWidth(sheetName, "B", "B", 32)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
