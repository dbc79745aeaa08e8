package tabular

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the inferred storage kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindReal
	KindDatetime
)

// String returns the kind name used in schema listings.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindDatetime:
		return "datetime"
	default:
		return "text"
	}
}

// SQLType returns the SQLite column type for the kind. Datetimes are kept as
// their source text so values stay byte-identical to the upload.
func (k Kind) SQLType() string {
	switch k {
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// nullTokens are the cell spellings treated as missing values.
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNull reports whether a raw cell denotes a missing value.
func IsNull(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

// InferKind picks the narrowest kind that accepts every non-null value.
// A column with no values at all is text.
func InferKind(values []string) Kind {
	isInt, isReal, isTime := true, true, true
	seen := 0
	for _, v := range values {
		if IsNull(v) {
			continue
		}
		seen++
		v = strings.TrimSpace(v)
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isReal && !isInt {
			if _, ok := parseFinite(v); !ok {
				isReal = false
			}
		}
		if isTime {
			if _, ok := parseTimeMaybe(v); !ok {
				isTime = false
			}
		}
		if !isInt && !isReal && !isTime {
			return KindText
		}
	}
	switch {
	case seen == 0:
		return KindText
	case isInt:
		return KindInteger
	case isReal:
		return KindReal
	case isTime:
		return KindDatetime
	}
	return KindText
}

// Convert turns a raw cell into the typed value stored for kind: nil for
// nulls, int64, float64 or string.
func Convert(k Kind, s string) any {
	if IsNull(s) {
		return nil
	}
	switch k {
	case KindInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	case KindReal:
		if f, ok := parseFinite(strings.TrimSpace(s)); ok {
			return f
		}
	}
	return s
}

// parseFinite parses s as a float, refusing the inf and nan spellings
// strconv accepts.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func parseTimeMaybe(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05", "1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
