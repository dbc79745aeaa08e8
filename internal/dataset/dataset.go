// Package dataset owns the active tabular dataset: it parses uploads,
// mirrors them into the backing store and keeps categorical profiles.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/tabletalk/internal/tabular"
)

// ErrNoDataset is returned when nothing has been loaded yet.
var ErrNoDataset = errors.New("no data loaded: upload or select a file first")

// ErrDatasetChanged is returned when a query was built against a snapshot
// that has since been replaced or cleared.
var ErrDatasetChanged = errors.New("the active dataset changed while the question was being answered; ask again")

// Column is one column of the active dataset.
type Column struct {
	Name string       `json:"name"`
	Kind tabular.Kind `json:"-"`
	Type string       `json:"type"`
}

// Profile holds the distinct values of a categorical column in order of
// first appearance.
type Profile struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// Dataset is an immutable snapshot of the active table. A new value is built
// on every load; callers may keep and read it without locking.
type Dataset struct {
	Version  uint64    `json:"version"`
	Table    string    `json:"table_identifier"`
	Source   string    `json:"source"`
	Columns  []Column  `json:"columns"`
	Profiles []Profile `json:"profiles"`
	Rows     int       `json:"rows"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ColumnNames returns the column names in table order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Profile returns the stored values of column, if it is categorical.
func (d *Dataset) Profile(column string) ([]string, bool) {
	for _, p := range d.Profiles {
		if p.Column == column {
			return p.Values, true
		}
	}
	return nil, false
}

// Categorical reports whether column has a profile.
func (d *Dataset) Categorical(column string) bool {
	_, ok := d.Profile(column)
	return ok
}

// TableIdentifier derives the backing-store name for a source file: the base
// name, extension stripped, lower-cased.
func TableIdentifier(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" || base == "." || base == "/" {
		return "dataset"
	}
	return base
}

// ProfileOptions bound categorical profiling.
type ProfileOptions struct {
	// MaxDistinct is the exclusive upper bound on distinct non-null values for
	// a column to count as categorical.
	MaxDistinct int
	// MaxSamples caps the stored values per column.
	MaxSamples int
}

// DefaultProfileOptions returns the stock bounds: fewer than 100 distinct
// values, at most 20 kept.
func DefaultProfileOptions() ProfileOptions {
	return ProfileOptions{MaxDistinct: 100, MaxSamples: 20}
}

func (o ProfileOptions) withDefaults() ProfileOptions {
	d := DefaultProfileOptions()
	if o.MaxDistinct <= 0 {
		o.MaxDistinct = d.MaxDistinct
	}
	if o.MaxSamples <= 0 {
		o.MaxSamples = d.MaxSamples
	}
	return o
}

// build types every column of t and converts its cells.
func build(t *tabular.Table) ([]Column, [][]any) {
	cols := make([]Column, len(t.Header))
	rows := make([][]any, len(t.Records))
	for i := range rows {
		rows[i] = make([]any, len(t.Header))
	}
	values := make([]string, len(t.Records))
	for j, name := range t.Header {
		for i, rec := range t.Records {
			values[i] = rec[j]
		}
		k := tabular.InferKind(values)
		cols[j] = Column{Name: name, Kind: k, Type: k.String()}
		for i, rec := range t.Records {
			rows[i][j] = tabular.Convert(k, rec[j])
		}
	}
	return cols, rows
}

// buildProfiles computes the categorical profile of every column whose
// distinct non-null count is below opts.MaxDistinct.
func buildProfiles(cols []Column, rows [][]any, opts ProfileOptions) []Profile {
	var out []Profile
	for j, c := range cols {
		seen := map[string]struct{}{}
		var ordered []string
		for _, row := range rows {
			if row[j] == nil {
				continue
			}
			v := render(row[j])
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			ordered = append(ordered, v)
			if len(ordered) >= opts.MaxDistinct {
				break
			}
		}
		if len(ordered) == 0 || len(ordered) >= opts.MaxDistinct {
			continue
		}
		if len(ordered) > opts.MaxSamples {
			ordered = ordered[:opts.MaxSamples]
		}
		out = append(out, Profile{Column: c.Name, Values: ordered})
	}
	return out
}

func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
