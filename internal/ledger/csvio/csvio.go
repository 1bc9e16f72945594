// Package csvio reads and writes ledger records as CSV with the header
// student_id,name,major,grade,balance,timestamp,amount,merchant_type,location,tx_type.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"campuscard/internal/core"
)

// Columns is the export column order.
var Columns = []string{
	"student_id", "name", "major", "grade", "balance",
	"timestamp", "amount", "merchant_type", "location", "tx_type",
}

var requiredColumns = []string{
	"student_id", "name", "major", "grade",
	"timestamp", "amount", "merchant_type", "location", "tx_type",
}

var (
	ErrEmptyFile     = errors.New("csv file is empty")
	ErrMissingColumn = errors.New("missing column")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LineError is a row that could not be imported. Line is 1-based and counts
// the header as line 1.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// Result holds the rows that parsed and the rows that did not.
type Result struct {
	Records []core.Record
	Errors  []LineError
}

// Read parses records from r. Bad rows are collected in Result.Errors and
// do not stop the import; only a missing or unusable header is fatal. A
// missing balance column leaves balances at zero for later recomputation.
func Read(r io.Reader) (*Result, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	res := &Result{Records: make([]core.Record, 0)}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return res, fmt.Errorf("read rows: %w", err)
			}
			res.Errors = append(res.Errors, LineError{Line: perr.StartLine, Err: perr.Err})
			continue
		}
		line, _ := cr.FieldPos(0)
		if isBlank(row) {
			continue
		}

		rec, err := parseRow(row, index)
		if err != nil {
			res.Errors = append(res.Errors, LineError{Line: line, Err: err})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseRow(row []string, index map[string]int) (core.Record, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	ts, err := core.ParseTimestamp(field("timestamp"))
	if err != nil {
		return core.Record{}, fmt.Errorf("timestamp %q: %w", field("timestamp"), err)
	}
	amount, err := core.ParseAmount(field("amount"))
	if err != nil {
		return core.Record{}, fmt.Errorf("amount %q: %w", field("amount"), err)
	}
	balance, err := core.ParseBalance(field("balance"))
	if err != nil {
		return core.Record{}, fmt.Errorf("balance %q: %w", field("balance"), err)
	}

	rec := core.Record{
		StudentID:    field("student_id"),
		Name:         field("name"),
		Major:        field("major"),
		Grade:        field("grade"),
		Balance:      balance,
		Timestamp:    ts,
		Amount:       amount,
		MerchantType: field("merchant_type"),
		Location:     field("location"),
		TxType:       core.ParseTxType(field("tx_type")),
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Write exports records with a UTF-8 BOM, the Columns header and money
// rounded to two decimals.
func Write(w io.Writer, records []core.Record) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.StudentID,
			r.Name,
			r.Major,
			r.Grade,
			core.FormatMoney(r.Balance),
			core.FormatTimestamp(r.Timestamp),
			core.FormatMoney(r.Amount),
			r.MerchantType,
			r.Location,
			r.TxType.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
