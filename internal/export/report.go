// Package export renders a session's validation errors as a downloadable
// report in CSV or XLSX form.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/importflow/internal/domain"
)

// Format selects the report encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnknownFormat is returned for formats the reporter cannot produce.
var ErrUnknownFormat = errors.New("unknown report format")

var reportHeader = []string{
	"row", "field", "rule", "severity", "message",
	"suggested_value", "suggested_confidence", "resolved",
}

// ParseFormat resolves a query-string value; empty defaults to CSV.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName builds the download name for a session report.
func (f Format) FileName(sess domain.ImportSession) string {
	return fmt.Sprintf("import-errors-%s.%s", sess.ID, f)
}

// WriteErrorReport writes every validation error of the session, resolved
// ones included, so the report doubles as an audit of what was repaired.
func WriteErrorReport(w io.Writer, sess domain.ImportSession, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, sess)
	case FormatXLSX:
		return writeXLSX(w, sess)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeCSV(w io.Writer, sess domain.ImportSession) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reportHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, ve := range sess.Errors {
		if err := writer.Write(reportRecord(ve)); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeXLSX(w io.Writer, sess domain.ImportSession) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	if err := setRow(f, sheet, 1, reportHeader); err != nil {
		return err
	}
	for i, ve := range sess.Errors {
		if err := setRow(f, sheet, i+2, reportRecord(ve)); err != nil {
			return err
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, record []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	values := make([]any, len(record))
	for i, v := range record {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to set report row %d: %w", rowNum, err)
	}
	return nil
}

func reportRecord(ve domain.ValidationError) []string {
	record := []string{
		strconv.Itoa(ve.Row),
		ve.Field,
		string(ve.Rule),
		string(ve.Severity),
		ve.Message,
		"", "",
		strconv.FormatBool(ve.Resolved),
	}
	if ve.Fix != nil {
		record[5] = ve.Fix.Value
		record[6] = strconv.FormatFloat(ve.Fix.Confidence, 'f', 2, 64)
	}
	return record
}
