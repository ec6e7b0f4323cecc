package connector

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapquery/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTypes = core.TypeMap{
	"int8":    core.TypeInteger,
	"numeric": core.TypeFloat,
	"text":    core.TypeString,
	"bool":    core.TypeBoolean,
}

func TestBaseSQLConnector_Disconnect(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "disconnect with nil DB", setupDB: false},
		{name: "disconnect with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLConnector{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			assert.NoError(t, base.Disconnect())
			assert.False(t, base.IsConnected())
			assert.NoError(t, base.Disconnect(), "second disconnect is a no-op")
		})
	}
}

func TestBaseSQLConnector_ExecuteQuery(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		args      []any
		errMsg    string
		want      []map[string]any
	}{
		{
			name:    "query without connection",
			setupDB: false,
			errMsg:  "database connection not established",
		},
		{
			name:    "typed columns convert driver text",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRowsWithColumnDefinition(
					sqlmock.NewColumn("id").OfType("INT8", int64(0)),
					sqlmock.NewColumn("amount").OfType("NUMERIC", ""),
					sqlmock.NewColumn("name").OfType("TEXT", ""),
				).
					AddRow(int64(1), []byte("12.5"), []byte("west")).
					AddRow(int64(2), nil, "east")
				mock.ExpectQuery("SELECT id, amount, name FROM t WHERE region = \\$1").
					WithArgs("West").
					WillReturnRows(rows)
			},
			args: []any{"West"},
			want: []map[string]any{
				{"id": int64(1), "amount": 12.5, "name": "west"},
				{"id": int64(2), "amount": nil, "name": "east"},
			},
		},
		{
			name:    "query error",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
			},
			errMsg: "failed to execute query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLConnector{Types: testTypes}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				tt.setupMock(mock)
				base.DB = db
			}

			result, err := base.ExecuteQuery(context.Background(), "SELECT id, amount, name FROM t WHERE region = $1", tt.args...)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Records())

			typ, _ := result.ColumnType("amount")
			assert.Equal(t, core.TypeFloat, typ)
		})
	}
}

func TestBaseSQLConnector_QueryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	base := &BaseSQLConnector{DB: db}

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery("SELECT pg_total_relation_size").WillReturnError(assert.AnError)

	count := base.QueryCount(context.Background(), "SELECT COUNT(*) FROM t")
	require.NotNil(t, count)
	assert.Equal(t, int64(42), *count)

	assert.Nil(t, base.QueryCount(context.Background(), "SELECT pg_total_relation_size('t')"), "failures degrade to nil")
	assert.NoError(t, mock.ExpectationsWereMet())
}
