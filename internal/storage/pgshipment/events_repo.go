package pgshipment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/models"
)

// ReconcileUpdate is one poll's outcome: either an error observation (the
// fail counter advances) or a state/event write. NewStatus is nil when the
// poll saw nothing new.
type ReconcileUpdate struct {
	ShipmentID uint64

	CheckedAt   time.Time
	NextCheckAt time.Time

	NewStatus *models.Status
	Events    []*models.TrackingEvent

	Error *string
}

func (s *Storage) ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, shipment_id, event_date, event_time, location, status, description, created_at
FROM shipment_events
WHERE shipment_id = $1
ORDER BY id ASC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.ShipmentID, &e.EventDate, &e.EventTime,
			&e.Location, &e.Status, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyReconcileUpdate writes one poll outcome atomically. On a status
// change the monotonic milestone timestamps are stamped in the same
// statement; each column is set only while still NULL, so a replayed or
// late update can never move a milestone.
func (s *Storage) ApplyReconcileUpdate(ctx context.Context, upd ReconcileUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update shipment (error)")
		}
	} else {
		if upd.NewStatus != nil {
			// A transition can land past a milestone (the carrier reported
			// late), so stamp every milestone the new status is at or
			// beyond, not just an exact match.
			ns := *upd.NewStatus
			pastPickedUp := ns.Rank() >= models.StatusPickedUp.Rank()
			pastOutForDelivery := ns.Rank() >= models.StatusOutForDelivery.Rank()
			delivered := ns.Rank() >= models.StatusDelivered.Rank()
			_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  status = $3,
  pickup_completed_at   = CASE WHEN $5 AND pickup_completed_at   IS NULL THEN $2 ELSE pickup_completed_at END,
  delivery_started_at   = CASE WHEN $6 AND delivery_started_at   IS NULL THEN $2 ELSE delivery_started_at END,
  delivery_completed_at = CASE WHEN $7 AND delivery_completed_at IS NULL THEN $2 ELSE delivery_completed_at END,
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $4,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), ns, upd.NextCheckAt.UTC(), pastPickedUp, pastOutForDelivery, delivered)
			if err != nil {
				return errors.Wrap(err, "update shipment (transition)")
			}
		} else {
			_, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $3,
  updated_at = now()
WHERE id = $1
`, upd.ShipmentID, upd.CheckedAt.UTC(), upd.NextCheckAt.UTC())
			if err != nil {
				return errors.Wrap(err, "update shipment (no change)")
			}
		}

		for _, e := range upd.Events {
			_, err := tx.Exec(ctx, `
INSERT INTO shipment_events (
  shipment_id, event_date, event_time, location, status, description, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (shipment_id, event_date, event_time, location, status) DO NOTHING
`, upd.ShipmentID, e.EventDate, e.EventTime, e.Location, e.Status, e.Description)
			if err != nil {
				return errors.Wrap(err, "insert shipment event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
