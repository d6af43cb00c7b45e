package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberhealth/clinicflow/internal/liveview"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		req      liveview.QueryRequest
		wantSQL  string
		wantArgs []any
		wantErr  bool
	}{
		{
			name:     "bare table",
			req:      liveview.QueryRequest{Table: "patients"},
			wantSQL:  `SELECT * FROM "patients"`,
			wantArgs: nil,
		},
		{
			name: "fields filter order limit",
			req: liveview.QueryRequest{
				Table:  "items",
				Fields: []string{"id", "status"},
				Filter: liveview.FilterSpec{
					{Field: "status", Op: liveview.OpEq, Operand: "open"},
					{Field: "priority", Op: liveview.OpGte, Operand: 2},
				},
				Order: &liveview.OrderSpec{Field: "created_at", Direction: liveview.Ascending},
				Limit: 25,
			},
			wantSQL:  `SELECT "id", "status" FROM "items" WHERE "status" = $1 AND "priority" >= $2 ORDER BY "created_at" ASC NULLS LAST LIMIT $3`,
			wantArgs: []any{"open", 2, 25},
		},
		{
			name: "descending nulls first",
			req: liveview.QueryRequest{
				Table: "items",
				Order: &liveview.OrderSpec{Field: "seen_at", Direction: liveview.Descending, Nulls: liveview.NullsFirst},
			},
			wantSQL:  `SELECT * FROM "items" ORDER BY "seen_at" DESC NULLS FIRST`,
			wantArgs: nil,
		},
		{
			name: "is null",
			req: liveview.QueryRequest{
				Table:  "items",
				Filter: liveview.FilterSpec{{Field: "deleted_at", Op: liveview.OpIs, Operand: nil}},
			},
			wantSQL:  `SELECT * FROM "items" WHERE "deleted_at" IS NULL`,
			wantArgs: nil,
		},
		{
			name: "is false",
			req: liveview.QueryRequest{
				Table:  "items",
				Filter: liveview.FilterSpec{{Field: "archived", Op: liveview.OpIs, Operand: false}},
			},
			wantSQL:  `SELECT * FROM "items" WHERE "archived" IS FALSE`,
			wantArgs: nil,
		},
		{
			name: "in uses ANY",
			req: liveview.QueryRequest{
				Table:  "items",
				Filter: liveview.FilterSpec{{Field: "status", Op: liveview.OpIn, Operand: []string{"open", "pending"}}},
			},
			wantSQL:  `SELECT * FROM "items" WHERE "status" = ANY($1)`,
			wantArgs: []any{[]string{"open", "pending"}},
		},
		{
			name:    "injection in table name rejected",
			req:     liveview.QueryRequest{Table: "items; DROP TABLE items"},
			wantErr: true,
		},
		{
			name: "injection in field name rejected",
			req: liveview.QueryRequest{
				Table:  "items",
				Filter: liveview.FilterSpec{{Field: `status" OR "1"="1`, Op: liveview.OpEq, Operand: "x"}},
			},
			wantErr: true,
		},
		{
			name: "is with string operand rejected",
			req: liveview.QueryRequest{
				Table:  "items",
				Filter: liveview.FilterSpec{{Field: "status", Op: liveview.OpIs, Operand: "open"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildQuery(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPostgresQuerierQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT \* FROM "items" WHERE "status" = \$1`).
		WithArgs("open").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "created_at"}).
			AddRow(int64(1), "open", int64(10)).
			AddRow(int64(2), "open", int64(20)))

	q := NewPostgresQuerierWithDB(mock)
	rows, err := q.Query(context.Background(), liveview.QueryRequest{
		Table:  "items",
		Filter: liveview.FilterSpec{{Field: "status", Op: liveview.OpEq, Operand: "open"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "open", rows[0]["status"])
	assert.Equal(t, int64(20), rows[1]["created_at"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuerierQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT \* FROM "items"`).
		WillReturnError(errors.New("permission denied"))

	q := NewPostgresQuerierWithDB(mock)
	_, err = q.Query(context.Background(), liveview.QueryRequest{Table: "items"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "permission denied")
}
