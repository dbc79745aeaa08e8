package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

type csvReader struct{}

func (csvReader) CanRead(filename string) bool {
	name := strings.ToLower(filename)
	return strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".tsv")
}

func (csvReader) Read(name string, data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = sniffDelimiter(name)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Name: name, Err: errors.New("no columns to parse from file")}
		}
		return nil, csvParseError(name, err)
	}
	t := &Table{Name: name, Header: normalizeHeader(header)}
	ncol := len(t.Header)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvParseError(name, err)
		}
		if len(rec) > ncol {
			line, _ := r.FieldPos(0)
			return nil, &ParseError{Name: name, Line: line, Err: fmt.Errorf("expected %d fields, saw %d", ncol, len(rec))}
		}
		row := make([]string, ncol)
		copy(row, rec)
		t.Records = append(t.Records, row)
	}
	return t, nil
}

func csvParseError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Name: name, Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Name: name, Err: err}
}

func sniffDelimiter(name string) rune {
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		return '\t'
	}
	return ','
}
