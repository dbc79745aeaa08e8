package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/KaramelBytes/tabletalk/internal/sqlstore"
	"github.com/KaramelBytes/tabletalk/internal/tabular"
)

const incidentsCSV = `Incident_ID,Incident_Type,Incident_Type_Category,Status,Hours
1,Near-Miss,Slip/Trip/Fall,Open,2.5
2,Injury,Struck By,Closed,
3,Near-Miss,Slip/Trip/Fall,Open,1
4,Property Damage,,Closed,4
`

func newTestStore(t *testing.T, opts ProfileOptions) *Store {
	t.Helper()
	backend, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return NewStore(backend, opts, zaptest.NewLogger(t))
}

func TestTableIdentifier(t *testing.T) {
	tests := map[string]string{
		"Incidents_Clean_Data.csv": "incidents_clean_data",
		"assets/Cases.XLSX":        "cases",
		`C:\tmp\Sales Q1.csv`:      "sales q1",
		"archive.tar.csv":          "archive.tar",
		".csv":                     "dataset",
		"":                         "dataset",
	}
	for in, want := range tests {
		assert.Equal(t, want, TableIdentifier(in), "TableIdentifier(%q)", in)
	}
}

func TestStore_LoadBuildsSchemaAndProfiles(t *testing.T) {
	s := newTestStore(t, DefaultProfileOptions())
	ds, err := s.Load(context.Background(), "Incidents.csv", []byte(incidentsCSV))
	require.NoError(t, err)

	assert.Equal(t, "incidents", ds.Table)
	assert.Equal(t, "Incidents.csv", ds.Source)
	assert.Equal(t, 4, ds.Rows)
	assert.Equal(t, []string{"Incident_ID", "Incident_Type", "Incident_Type_Category", "Status", "Hours"}, ds.ColumnNames())
	assert.Equal(t, tabular.KindInteger, ds.Columns[0].Kind)
	assert.Equal(t, tabular.KindReal, ds.Columns[4].Kind)

	vals, ok := ds.Profile("Incident_Type")
	require.True(t, ok)
	assert.Equal(t, []string{"Near-Miss", "Injury", "Property Damage"}, vals)

	vals, ok = ds.Profile("Incident_Type_Category")
	require.True(t, ok)
	assert.Equal(t, []string{"Slip/Trip/Fall", "Struck By"}, vals, "nulls are not profiled")

	vals, ok = ds.Profile("Hours")
	require.True(t, ok)
	assert.Equal(t, []string{"2.5", "1", "4"}, vals)

	assert.True(t, ds.Categorical("Status"))
	assert.False(t, ds.Categorical("Missing"))
}

func TestStore_ProfileBounds(t *testing.T) {
	s := newTestStore(t, ProfileOptions{MaxDistinct: 3, MaxSamples: 2})
	csv := "few,many\nx,a\ny,b\nx,c\ny,a\n"
	ds, err := s.Load(context.Background(), "bounds.csv", []byte(csv))
	require.NoError(t, err)

	vals, ok := ds.Profile("few")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, vals)
	assert.False(t, ds.Categorical("many"), "3 distinct values is not below the bound of 3")

	s = newTestStore(t, ProfileOptions{MaxDistinct: 10, MaxSamples: 2})
	ds, err = s.Load(context.Background(), "bounds.csv", []byte(csv))
	require.NoError(t, err)
	vals, _ = ds.Profile("many")
	assert.Equal(t, []string{"a", "b"}, vals)
}

func TestStore_NonFiniteCellsStayText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	ds, err := s.Load(ctx, "m.csv", []byte("metric,label\n1.5,a\ninf,b\n"))
	require.NoError(t, err)
	assert.Equal(t, tabular.KindText, ds.Columns[0].Kind)

	res, err := s.Execute(ctx, ds, `SELECT * FROM m`)
	require.NoError(t, err)
	b, err := json.Marshal(res.Rows)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"metric":"1.5","label":"a"},{"metric":"inf","label":"b"}]`, string(b))
}

func TestStore_LoadTwiceReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	first, err := s.Load(ctx, "cases.csv", []byte("Status\nOpen\nClosed\n"))
	require.NoError(t, err)
	second, err := s.Load(ctx, "cases.csv", []byte("Status\nOpen\n"))
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	res, err := s.Execute(ctx, second, "SELECT COUNT(*) AS n FROM cases")
	require.NoError(t, err)
	n, _ := res.Rows[0].Get("n")
	assert.EqualValues(t, 1, n)
}

func TestStore_FailedLoadKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	ds, err := s.Load(ctx, "cases.csv", []byte("Status\nOpen\n"))
	require.NoError(t, err)

	_, err = s.Load(ctx, "cases.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, tabular.ErrUnsupportedFormat)
	_, err = s.Load(ctx, "broken.csv", []byte("a,b\n1,2,3\n"))
	assert.ErrorIs(t, err, tabular.ErrParse)

	cur, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ds.Version, cur.Version)
}

func TestStore_SnapshotEmpty(t *testing.T) {
	s := newTestStore(t, DefaultProfileOptions())
	_, err := s.Snapshot()
	assert.ErrorIs(t, err, ErrNoDataset)
	assert.Nil(t, s.Current())
	_, err = s.Execute(context.Background(), nil, "SELECT 1")
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestStore_ExecuteRejectsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	old, err := s.Load(ctx, "a.csv", []byte("x\n1\n"))
	require.NoError(t, err)
	_, err = s.Load(ctx, "b.csv", []byte("y\n2\n"))
	require.NoError(t, err)

	_, err = s.Execute(ctx, old, "SELECT * FROM a")
	assert.ErrorIs(t, err, ErrDatasetChanged)
}

func TestStore_ClearAndClearIfTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	ds, err := s.Load(ctx, "cases.csv", []byte("Status\nOpen\n"))
	require.NoError(t, err)

	cleared, err := s.ClearIfTable(ctx, "other")
	require.NoError(t, err)
	assert.False(t, cleared)
	assert.NotNil(t, s.Current())

	cleared, err = s.ClearIfTable(ctx, ds.Table)
	require.NoError(t, err)
	assert.True(t, cleared)
	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrNoDataset)

	ds, err = s.Load(ctx, "cases.csv", []byte("Status\nOpen\n"))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx))
	_, err = s.Execute(ctx, ds, "SELECT * FROM cases")
	assert.ErrorIs(t, err, ErrNoDataset)
}

func TestStore_LoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Inspection_Clean_Data.csv")
	require.NoError(t, os.WriteFile(p, []byte("Result\nPass\nFail\n"), 0o644))

	s := newTestStore(t, DefaultProfileOptions())
	ds, err := s.LoadFile(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "inspection_clean_data", ds.Table)

	_, err = s.LoadFile(context.Background(), filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	_, err = s.LoadFile(context.Background(), filepath.Join(dir, "notes.pdf"))
	assert.ErrorIs(t, err, tabular.ErrUnsupportedFormat)
	assert.Equal(t, "inspection_clean_data", s.Current().Table, "failed loads keep the active dataset")
}

func TestStore_ConcurrentLoadsAndQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, DefaultProfileOptions())
	_, err := s.Load(ctx, "cases.csv", []byte("Status\nOpen\n"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			body := "Status\n" + strings.Repeat(fmt.Sprintf("S%d\n", i), i+1)
			_, err := s.Load(ctx, "cases.csv", []byte(body))
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			snap, err := s.Snapshot()
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Execute(ctx, snap, "SELECT * FROM cases")
			if err != nil {
				assert.ErrorIs(t, err, ErrDatasetChanged)
			}
		}()
	}
	wg.Wait()

	snap, err := s.Snapshot()
	require.NoError(t, err)
	res, err := s.Execute(ctx, snap, "SELECT COUNT(*) AS n FROM cases")
	require.NoError(t, err)
	n, _ := res.Rows[0].Get("n")
	assert.EqualValues(t, snap.Rows, n)
}
