package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// scheduleDB is the slice of pgx the repository needs, kept small so tests
// can inject a mock pool.
type scheduleDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository reads weekly schedules joined with their owning
// profile.
type PostgresRepository struct {
	db scheduleDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("schedule: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting a mock database for testing.
func NewPostgresRepositoryWithDB(db scheduleDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListByRole returns one WeeklySchedule per profile with the given role,
// days assembled from the per-weekday rows. The role filter runs
// server-side; profiles without any schedule rows are absent from the
// result.
func (r *PostgresRepository) ListByRole(ctx context.Context, role string) ([]WeeklySchedule, error) {
	query := `
		SELECT s.id, s.profile_id, s.weekday, s.active,
		       s.start_minutes, s.end_minutes, s.break_start_minutes, s.break_end_minutes,
		       p.id, p.display_name, p.role, COALESCE(p.specialty, '')
		FROM weekly_schedules s
		JOIN profiles p ON p.id = s.profile_id
		WHERE p.role = $1
		ORDER BY s.profile_id, s.weekday
	`
	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("schedule: list by role: %w", err)
	}
	defer rows.Close()

	var (
		out   []WeeklySchedule
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			rowID, profileID                       string
			weekday                                int
			active                                 bool
			start, end, breakStart, breakEnd       pgtype.Int4
			profID, displayName, profRole, special string
		)
		if err := rows.Scan(
			&rowID, &profileID, &weekday, &active,
			&start, &end, &breakStart, &breakEnd,
			&profID, &displayName, &profRole, &special,
		); err != nil {
			return nil, fmt.Errorf("schedule: scan row: %w", err)
		}

		i, ok := index[profileID]
		if !ok {
			out = append(out, WeeklySchedule{
				ID:        rowID,
				ProfileID: profileID,
				Days:      map[time.Weekday]DayHours{},
				Profile: &Profile{
					ID:          profID,
					DisplayName: displayName,
					Role:        profRole,
					Specialty:   special,
				},
			})
			i = len(out) - 1
			index[profileID] = i
		}
		out[i].Days[time.Weekday(weekday%7)] = DayHours{
			Active:     active,
			Start:      int4Ptr(start),
			End:        int4Ptr(end),
			BreakStart: int4Ptr(breakStart),
			BreakEnd:   int4Ptr(breakEnd),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("schedule: iterate rows: %w", err)
	}
	return out, nil
}

func int4Ptr(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	m := int(v.Int32)
	return &m
}
