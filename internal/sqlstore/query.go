package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrQueryExecution matches every failure of Query.
var ErrQueryExecution = errors.New("query execution failed")

// QueryError carries the engine message for a failed query. The query text
// is kept as submitted.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQueryExecution }

// Result is the outcome of one query: column names in projection order and
// every fetched row.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Row maps column names to values while keeping projection order.
type Row struct {
	cols []string
	vals []any
}

// NewRow pairs cols with vals; both must have the same length.
func NewRow(cols []string, vals []any) Row {
	return Row{cols: cols, vals: vals}
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i], true
		}
	}
	return nil, false
}

// Values returns the row values in projection order.
func (r Row) Values() []any { return r.vals }

// MarshalJSON encodes the row as an object whose keys follow projection order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(jsonValue(r.vals[i]))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// jsonValue maps values JSON cannot carry to null.
func jsonValue(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
	case float32:
		if math.IsInf(float64(f), 0) || math.IsNaN(float64(f)) {
			return nil
		}
	}
	return v
}

// Query runs query on a dedicated connection and returns all rows. The
// connection goes back to the pool on every path.
func (s *Store) Query(ctx context.Context, query string) (*Result, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	if cols == nil {
		cols = []string{}
	}
	res := &Result{Columns: cols, Rows: []Row{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, NewRow(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	return res, nil
}
