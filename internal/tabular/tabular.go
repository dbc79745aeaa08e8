// Package tabular decodes CSV, TSV and XLSX sources into header + records
// form and infers a storage kind per column.
package tabular

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Table is a decoded tabular source. Records are padded to len(Header);
// null cells are represented by IsNull values (usually "").
type Table struct {
	Name    string
	Header  []string
	Records [][]string
}

// Reader decodes one family of tabular formats.
type Reader interface {
	CanRead(filename string) bool
	Read(name string, data []byte) (*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// Supported reports whether filename has an extension some reader accepts.
func Supported(filename string) bool {
	for _, r := range registry {
		if r.CanRead(filename) {
			return true
		}
	}
	return false
}

// ReadFile selects a reader based on the filename and decodes the file.
func ReadFile(path string) (*Table, error) {
	if !Supported(path) {
		return nil, &FormatError{Name: filepath.Base(path), Ext: filepath.Ext(path)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Decode(filepath.Base(path), data)
}

// Decode decodes in-memory content; name is used for format selection.
func Decode(name string, data []byte) (*Table, error) {
	for _, r := range registry {
		if r.CanRead(name) {
			return r.Read(name, data)
		}
	}
	return nil, &FormatError{Name: name, Ext: filepath.Ext(name)}
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
	Register(xlsReader{})
}

// ErrUnsupportedFormat reports a source whose extension or content is not a
// recognized tabular format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// ErrParse reports malformed content in a recognized format.
var ErrParse = errors.New("parse error")

// FormatError is returned for unsupported sources.
type FormatError struct {
	Name   string
	Ext    string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported file format %q for %s: %s", e.Ext, e.Name, e.Reason)
	}
	return fmt.Sprintf("unsupported file format %q for %s (use .csv, .tsv or .xlsx)", e.Ext, e.Name)
}

func (e *FormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// ParseError is returned for malformed content. Line is 1-based when known.
type ParseError struct {
	Name string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Name, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// normalizeHeader names blank header cells "Unnamed: N" and suffixes
// duplicates with ".1", ".2", ... so every column name is unique.
func normalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	next := make(map[string]int)
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Unnamed: " + strconv.Itoa(i)
		}
		name := h
		for used[name] {
			next[h]++
			name = h + "." + strconv.Itoa(next[h])
		}
		used[name] = true
		out[i] = name
	}
	return out
}
