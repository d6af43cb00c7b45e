package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/emberhealth/clinicflow/pkg/logging"
)

// Source is the joined fetch capability the availability service consumes.
type Source interface {
	ListByRole(ctx context.Context, role string) ([]WeeklySchedule, error)
}

// Service answers "which clinicians are available right now" against a
// snapshot of weekly schedules. The snapshot is fetched per call; it is
// not live-updated.
type Service struct {
	source Source
	logger *logging.Logger
	now    func() time.Time
}

// NewService wires the availability service.
func NewService(source Source, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// AvailableNow fetches clinician schedules and keeps those whose working
// window covers the current instant. Rows without a joined profile are
// skipped; result order follows fetch order.
func (s *Service) AvailableNow(ctx context.Context) ([]Profile, error) {
	return s.AvailableAt(ctx, s.now())
}

// AvailableAt is AvailableNow against an explicit instant.
func (s *Service) AvailableAt(ctx context.Context, at time.Time) ([]Profile, error) {
	schedules, err := s.source.ListByRole(ctx, RoleClinician)
	if err != nil {
		return nil, fmt.Errorf("schedule: fetch clinician schedules: %w", err)
	}

	available := make([]Profile, 0, len(schedules))
	for _, ws := range schedules {
		if ws.Profile == nil {
			s.logger.Debug("skipping schedule without profile", "schedule_id", ws.ID)
			continue
		}
		if AvailableAt(ws, at) {
			available = append(available, *ws.Profile)
		}
	}
	return available, nil
}
