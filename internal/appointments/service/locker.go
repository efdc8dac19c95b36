package service

import (
	"context"

	"clinic_booking_backend/internal/appointments/domain"
	"clinic_booking_backend/platform/logger"
	"clinic_booking_backend/platform/metrics"
)

// maxLockAttempts bounds select-lock-revalidate rounds per resource kind.
const maxLockAttempts = 2

// resourceLocker selects, locks and revalidates one resource of a kind.
type resourceLocker struct {
	kind        domain.ResourceKind
	unavailable func(q domain.CandidateQuery) error
	log         *logger.Logger
	metrics     *metrics.Collector
}

func newDoctorLocker(log *logger.Logger, m *metrics.Collector) resourceLocker {
	return resourceLocker{
		kind: domain.KindDoctor,
		unavailable: func(q domain.CandidateQuery) error {
			return domain.ErrNoAvailableDoctor(q.Specialty, q.Window)
		},
		log:     log,
		metrics: m,
	}
}

func newRoomLocker(log *logger.Logger, m *metrics.Collector) resourceLocker {
	return resourceLocker{
		kind: domain.KindRoom,
		unavailable: func(q domain.CandidateQuery) error {
			return domain.ErrNoAvailableRoom(q.Window)
		},
		log:     log,
		metrics: m,
	}
}

// Acquire returns a locked resource that is free for q.Window. The candidate
// is re-checked once the lock is held because another transaction may have
// booked it between selection and locking. Losing that race releases the
// lock and selects again, at most maxLockAttempts times in total.
func (l resourceLocker) Acquire(ctx context.Context, tx Tx, q domain.CandidateQuery) (*domain.Resource, error) {
	q.Kind = l.kind

	for attempt := 1; attempt <= maxLockAttempts; attempt++ {
		candidate, err := tx.FirstAvailable(ctx, q)
		if err != nil {
			return nil, domain.Classify(err)
		}
		if candidate == nil {
			return nil, l.unavailable(q)
		}

		locked, err := tx.Lock(ctx, l.kind, candidate.ID)
		if err != nil {
			return nil, domain.Classify(err)
		}

		taken, err := tx.ExistsOverlap(ctx, l.kind, locked.ID, q.Window)
		if err != nil {
			return nil, domain.Classify(err)
		}
		if !taken {
			return locked, nil
		}

		l.log.WithContext(ctx).ResourceContended(string(l.kind), locked.ID, attempt)
		l.metrics.ObserveRetry(string(l.kind))
		if err := tx.Release(ctx, l.kind, locked.ID); err != nil {
			return nil, domain.Classify(err)
		}
	}

	return nil, l.unavailable(q)
}
