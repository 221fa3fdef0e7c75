// Package spreadsheet turns uploaded or shared spreadsheets into participant rows
package spreadsheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/honeycarbs/placement-pipeline/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned for file names that are neither xlsx nor csv
	ErrUnsupportedFormat = errors.New("spreadsheet: unsupported file format")

	// ErrNoEmailColumn is returned when no header cell names an email column
	ErrNoEmailColumn = errors.New("spreadsheet: no email column in header")
)

type column int

const (
	colEmail column = iota
	colName
	colStatus
)

// headerAliases maps a squashed header cell to the column it names
var headerAliases = map[string]column{
	"email":        colEmail,
	"emailaddress": colEmail,
	"emailid":      colEmail,
	"mail":         colEmail,
	"studentemail": colEmail,
	"name":         colName,
	"fullname":     colName,
	"studentname":  colName,
	"status":       colStatus,
	"result":       colStatus,
	"outcome":      colStatus,
}

var squash = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "")

// Parse picks the parser from the file extension of name
func Parse(name string, r io.Reader) ([]domain.ParticipantRow, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return ParseXLSX(r)
	case ".csv":
		return ParseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// ParseXLSX reads the first worksheet of an Excel workbook
func ParseXLSX(r io.Reader) ([]domain.ParticipantRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read sheet %q: %w", sheets[0], err)
	}
	return FromValues(rows)
}

// ParseCSV reads comma separated values with a header row
func ParseCSV(r io.Reader) ([]domain.ParticipantRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read csv: %w", err)
	}
	return FromValues(rows)
}

// FromValues maps a grid whose first non-blank row is a header. Header cells
// match case, space and underscore insensitively; rows with every cell blank
// are dropped.
func FromValues(values [][]string) ([]domain.ParticipantRow, error) {
	start := 0
	for start < len(values) && blank(values[start]) {
		start++
	}
	if start == len(values) {
		return nil, nil
	}

	index := map[column]int{}
	for i, cell := range values[start] {
		key := squash.Replace(strings.ToLower(strings.TrimSpace(cell)))
		if col, ok := headerAliases[key]; ok {
			if _, taken := index[col]; !taken {
				index[col] = i
			}
		}
	}
	if _, ok := index[colEmail]; !ok {
		return nil, ErrNoEmailColumn
	}

	out := make([]domain.ParticipantRow, 0, len(values)-start-1)
	for _, row := range values[start+1:] {
		if blank(row) {
			continue
		}
		out = append(out, domain.ParticipantRow{
			Email:  cellAt(row, index, colEmail),
			Name:   cellAt(row, index, colName),
			Status: cellAt(row, index, colStatus),
		})
	}
	return out, nil
}

// ValueReader fetches a range of cell text, as pkg/sheets.Client does
type ValueReader interface {
	GetValues(ctx context.Context, spreadsheetID, readRange string) ([][]string, error)
}

// SheetReader loads participant rows from a Google Sheets range
type SheetReader struct {
	values ValueReader
}

// NewSheetReader creates a SheetReader
func NewSheetReader(values ValueReader) *SheetReader {
	return &SheetReader{values: values}
}

// Read fetches readRange and maps it with FromValues
func (s *SheetReader) Read(ctx context.Context, spreadsheetID, readRange string) ([]domain.ParticipantRow, error) {
	if s == nil || s.values == nil {
		return nil, fmt.Errorf("spreadsheet: sheets client is not configured")
	}
	values, err := s.values.GetValues(ctx, spreadsheetID, readRange)
	if err != nil {
		return nil, err
	}
	return FromValues(values)
}

func cellAt(row []string, index map[column]int, col column) string {
	i, ok := index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
