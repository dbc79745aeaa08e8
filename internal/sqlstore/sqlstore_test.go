package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var caseCols = []Column{{Name: "Status", Type: "TEXT"}, {Name: "Hours", Type: "REAL"}}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"cases"`, QuoteIdent("cases"))
	assert.Equal(t, `"Incident Type"`, QuoteIdent("Incident Type"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func TestReplaceTable_Mock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE IF EXISTS "cases"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "cases" ("Status" TEXT, "Hours" REAL)`)).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(regexp.QuoteMeta(`INSERT INTO "cases" ("Status", "Hours") VALUES (?, ?)`))
	prep.ExpectExec().WithArgs("Open", 2.5).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("Closed", nil).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	s := New(db)
	err = s.ReplaceTable(context.Background(), "cases", caseCols, [][]any{{"Open", 2.5}, {"Closed", nil}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_RollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = New(db).ReplaceTable(context.Background(), "cases", caseCols, [][]any{{"Open", 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceTable_RejectsNoColumns(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	assert.Error(t, New(db).ReplaceTable(context.Background(), "t", nil, nil))
}

func TestQuery_Mock(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantCols  []string
		wantRows  int
		expectErr bool
		errMsg    string
	}{
		{
			name: "rows with byte values",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"Status", "n"}).
					AddRow([]byte("Open"), int64(2)).
					AddRow([]byte("Closed"), int64(1))
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			wantCols: []string{"Status", "n"},
			wantRows: 2,
		},
		{
			name: "empty result keeps columns",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"Status"}))
			},
			wantCols: []string{"Status"},
			wantRows: 0,
		},
		{
			name: "engine error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(errors.New("no such table: nope"))
			},
			expectErr: true,
			errMsg:    "no such table: nope",
		},
		{
			name: "row iteration error",
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"Status"}).
					AddRow("Open").
					RowError(0, errors.New("interrupted"))
				mock.ExpectQuery("SELECT").WillReturnRows(rows)
			},
			expectErr: true,
			errMsg:    "interrupted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()
			tt.setupMock(mock)

			res, err := New(db).Query(context.Background(), "SELECT * FROM cases")
			if tt.expectErr {
				require.Error(t, err)
				assert.Nil(t, res)
				assert.True(t, errors.Is(err, ErrQueryExecution))
				var qe *QueryError
				require.True(t, errors.As(err, &qe))
				assert.Equal(t, "SELECT * FROM cases", qe.Query)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCols, res.Columns)
			assert.Len(t, res.Rows, tt.wantRows)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQuery_ConvertsBytesToString(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"Status"}).AddRow([]byte("Open")))

	res, err := New(db).Query(context.Background(), "SELECT Status FROM cases")
	require.NoError(t, err)
	v, ok := res.Rows[0].Get("Status")
	require.True(t, ok)
	assert.Equal(t, "Open", v)
}

func TestRowMarshalJSONKeepsOrder(t *testing.T) {
	row := NewRow([]string{"z", "a", "m"}, []any{int64(1), "two", nil})
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"two","m":null}`, string(b))

	b, err = json.Marshal(Result{Columns: []string{}, Rows: []Row{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":[],"rows":[]}`, string(b))
}

func TestRowMarshalJSONNonFiniteIsNull(t *testing.T) {
	row := NewRow([]string{"pos", "neg", "nan", "ok"}, []any{math.Inf(1), float32(math.Inf(-1)), math.NaN(), 1.5})
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"pos":null,"neg":null,"nan":null,"ok":1.5}`, string(b))
}

func TestSQLite_OverflowingRealStillEncodes(t *testing.T) {
	s := openTemp(t)
	res, err := s.Query(context.Background(), `SELECT 1e999 AS big, 'x' AS label`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	b, err := json.Marshal(res.Rows)
	require.NoError(t, err)
	assert.Equal(t, `[{"big":null,"label":"x"}]`, string(b))
}

func TestSQLite_ReplaceAndQuery(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceTable(ctx, "cases", caseCols, [][]any{{"Open", 2.5}, {"Closed", nil}, {"Open", 1.0}}))
	res, err := s.Query(ctx, `SELECT COUNT(*) AS n FROM cases WHERE Status = 'Open'`)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, res.Columns)
	require.Len(t, res.Rows, 1)
	n, _ := res.Rows[0].Get("n")
	assert.EqualValues(t, 2, n)

	// a second load of the same identifier replaces rather than appends
	require.NoError(t, s.ReplaceTable(ctx, "cases", caseCols, [][]any{{"Closed", 3.0}}))
	res, err = s.Query(ctx, `SELECT * FROM cases`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	status, _ := res.Rows[0].Get("Status")
	assert.Equal(t, "Closed", status)
}

func TestSQLite_InvalidQueryDoesNotLeakConnection(t *testing.T) {
	s := openTemp(t)
	s.DB().SetMaxOpenConns(1)
	require.NoError(t, s.ReplaceTable(context.Background(), "cases", caseCols, [][]any{{"Open", 1.0}}))

	_, err := s.Query(context.Background(), "SELEC broken FROM")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryExecution)

	_, err = s.Query(context.Background(), "SELECT * FROM missing_table")
	require.ErrorIs(t, err, ErrQueryExecution)
	assert.Contains(t, err.Error(), "missing_table")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Query(ctx, "SELECT Status FROM cases")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}

func TestSQLite_DropTable(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.ReplaceTable(ctx, "cases", caseCols, nil))
	require.NoError(t, s.DropTable(ctx, "cases"))
	require.NoError(t, s.DropTable(ctx, "cases"))
	_, err := s.Query(ctx, "SELECT * FROM cases")
	assert.ErrorIs(t, err, ErrQueryExecution)
}
