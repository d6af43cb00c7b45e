package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int4(v int) pgtype.Int4 {
	return pgtype.Int4{Int32: int32(v), Valid: true}
}

func nullInt4() pgtype.Int4 {
	return pgtype.Int4{}
}

var scheduleColumns = []string{
	"id", "profile_id", "weekday", "active",
	"start_minutes", "end_minutes", "break_start_minutes", "break_end_minutes",
	"p_id", "display_name", "role", "specialty",
}

func TestPostgresRepositoryListByRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows(scheduleColumns).
		AddRow("ws-1", "p1", 1, true, int4(480), int4(1080), int4(720), int4(780),
			"p1", "Dr. Imani Weber", "clinician", "dermatology").
		AddRow("ws-1", "p1", 2, true, int4(540), int4(1020), nullInt4(), nullInt4(),
			"p1", "Dr. Imani Weber", "clinician", "dermatology").
		AddRow("ws-2", "p2", 1, false, nullInt4(), nullInt4(), nullInt4(), nullInt4(),
			"p2", "Dr. Saul Ortega", "clinician", "")

	mock.ExpectQuery(`SELECT s\.id, s\.profile_id, s\.weekday, s\.active`).
		WithArgs(RoleClinician).
		WillReturnRows(rows)

	repo := NewPostgresRepositoryWithDB(mock)
	got, err := repo.ListByRole(context.Background(), RoleClinician)
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "p1", first.ProfileID)
	require.NotNil(t, first.Profile)
	assert.Equal(t, "Dr. Imani Weber", first.Profile.DisplayName)
	assert.Equal(t, "dermatology", first.Profile.Specialty)
	require.Len(t, first.Days, 2)

	monday := first.Days[time.Monday]
	assert.True(t, monday.Active)
	require.NotNil(t, monday.Start)
	assert.Equal(t, 480, *monday.Start)
	require.NotNil(t, monday.BreakEnd)
	assert.Equal(t, 780, *monday.BreakEnd)

	tuesday := first.Days[time.Tuesday]
	assert.Nil(t, tuesday.BreakStart, "null break must scan to nil")

	second := got[1]
	assert.False(t, second.Days[time.Monday].Active)
	assert.Nil(t, second.Days[time.Monday].Start)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListByRoleEmpty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT s\.id, s\.profile_id`).
		WithArgs(RoleClinician).
		WillReturnRows(pgxmock.NewRows(scheduleColumns))

	repo := NewPostgresRepositoryWithDB(mock)
	got, err := repo.ListByRole(context.Background(), RoleClinician)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListByRoleQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT s\.id, s\.profile_id`).
		WithArgs(RoleClinician).
		WillReturnError(errors.New("relation does not exist"))

	repo := NewPostgresRepositoryWithDB(mock)
	_, err = repo.ListByRole(context.Background(), RoleClinician)
	require.Error(t, err)
	assert.ErrorContains(t, err, "list by role")
}
