package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Separator is the field separator of every CSV the engine writes.
const Separator = ';'

// Format is the container format of a table.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf infers the format from a file name or URI.
func FormatOf(name string) Format {
	if strings.EqualFold(path.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Table is a header plus string rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Read decodes r in the given format.  sheet selects the xlsx sheet; empty
// means the first one.
func Read(r io.Reader, format Format, sheet string) (*Table, error) {
	switch format {
	case FormatXLSX:
		return ReadXLSX(r, sheet)
	case FormatCSV, "":
		return ReadCSV(r)
	default:
		return nil, errors.New(errors.ErrCodeUnsupportedFormat, "unsupported table format").
			WithDetailf("format=%s", format)
	}
}

// ReadCSV reads a delimited table.  The separator is sniffed from the
// header line among ';', tab and ','.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.Wrap(err, errors.ErrCodeIORead, "reading table header")
	}
	cr := csv.NewReader(br)
	cr.Comma = sniffSeparator(head)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIORead, "parsing csv")
	}
	return fromRecords(records)
}

func sniffSeparator(head []byte) rune {
	line := head
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		line = head[:i]
	}
	best, bestCount := rune(Separator), 0
	for _, sep := range []rune{Separator, '\t', ','} {
		if n := bytes.Count(line, []byte(string(sep))); n > bestCount {
			best, bestCount = sep, n
		}
	}
	return best
}

// ReadXLSX reads one sheet of a workbook.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIORead, "opening workbook")
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New(errors.ErrCodeIORead, "workbook has no sheet")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIORead, "reading sheet").WithDetailf("sheet=%s", sheet)
	}
	return fromRecords(rows)
}

func fromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New(errors.ErrCodeIORead, "table has no header row")
	}
	t := &Table{Header: records[0]}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Writer writes ';'-separated rows.
type Writer struct {
	cw *csv.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	cw := csv.NewWriter(w)
	cw.Comma = Separator
	return &Writer{cw: cw}
}

// Write writes one record.
func (w *Writer) Write(record ...string) error {
	if err := w.cw.Write(record); err != nil {
		return errors.Wrap(err, errors.ErrCodeIOWrite, "writing csv record")
	}
	return nil
}

// Flush flushes buffered records and reports any deferred error.
func (w *Writer) Flush() error {
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeIOWrite, "flushing csv")
	}
	return nil
}
