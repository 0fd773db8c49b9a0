package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a supported spreadsheet format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Column names recognized in the header row.
const (
	ColumnName        = "name"
	ColumnDescription = "description"
)

// MetadataColumns are copied into a row's metadata when non-blank.
var MetadataColumns = []string{"pos", "level", "example", "prompt", "theme", "phonetic"}

var (
	// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported import format")
	// ErrMissingHeader is returned when the file is empty or has no name column.
	ErrMissingHeader = errors.New("import file must start with a header row containing a name column")
	// ErrTooManyRows is returned when the file has more data rows than allowed.
	ErrTooManyRows = errors.New("import file has too many rows")
	// ErrMalformedFile is returned when the file cannot be read as its format.
	ErrMalformedFile = errors.New("import file is malformed")
)

// Row is one data row of an import file.
type Row struct {
	// Line is the 1-based line (or sheet row) the data came from.
	Line        int
	Name        string
	Description string
	Metadata    map[string]string
}

// Blank reports whether the row has no name and should be skipped.
func (r Row) Blank() bool {
	return r.Name == ""
}

// DetectFormat picks the format from a file name extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Parse reads every data row of r. maxRows <= 0 means unlimited.
func Parse(format Format, r io.Reader, maxRows int) ([]Row, error) {
	var records [][]string
	var err error

	switch format {
	case FormatCSV:
		records, err = readCSV(r)
	case FormatXLSX:
		records, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	return toRows(records, maxRows)
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMissingHeader
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrMalformedFile, sheets[0], err)
	}
	return rows, nil
}

func toRows(records [][]string, maxRows int) ([]Row, error) {
	if len(records) == 0 {
		return nil, ErrMissingHeader
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[key]; !dup && key != "" {
			index[key] = i
		}
	}
	if _, ok := index[ColumnName]; !ok {
		return nil, ErrMissingHeader
	}

	data := records[1:]
	if maxRows > 0 && len(data) > maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit is %d", ErrTooManyRows, len(data), maxRows)
	}

	cell := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	rows := make([]Row, 0, len(data))
	for i, record := range data {
		row := Row{
			Line:        i + 2,
			Name:        cell(record, ColumnName),
			Description: cell(record, ColumnDescription),
		}
		for _, column := range MetadataColumns {
			if v := cell(record, column); v != "" {
				if row.Metadata == nil {
					row.Metadata = make(map[string]string)
				}
				row.Metadata[column] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
