package pgshipment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/models"
)

const shipmentCols = `
  id, order_id, user_id, carrier, status,
  pickup_tracking_no, delivery_tracking_no,
  pickup_addr, pickup_addr_detail, pickup_zip, pickup_phone,
  delivery_addr, delivery_addr_detail, delivery_zip, delivery_phone,
  booking_req_type, booking_pay_type, booking_req_no, booking_res_no, booking_reg_date,
  fee, origin_office, virtual_tel,
  pickup_requested_at, pickup_completed_at, delivery_started_at, delivery_completed_at,
  last_checked_at, next_check_at, check_fail_count, last_error,
  created_at, updated_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var sh models.Shipment
	if err := row.Scan(
		&sh.ID, &sh.OrderID, &sh.UserID, &sh.Carrier, &sh.Status,
		&sh.PickupTrackingNo, &sh.DeliveryTrackingNo,
		&sh.Pickup.Addr, &sh.Pickup.AddrDetail, &sh.Pickup.Zip, &sh.Pickup.Phone,
		&sh.Delivery.Addr, &sh.Delivery.AddrDetail, &sh.Delivery.Zip, &sh.Delivery.Phone,
		&sh.Booking.ReqType, &sh.Booking.PayType, &sh.Booking.ReqNo, &sh.Booking.ResNo, &sh.Booking.RegDate,
		&sh.Fee, &sh.OriginOffice, &sh.VirtualTelNo,
		&sh.PickupRequestedAt, &sh.PickupCompletedAt, &sh.DeliveryStartedAt, &sh.DeliveryCompletedAt,
		&sh.LastCheckedAt, &sh.NextCheckAt, &sh.CheckFailCount, &sh.LastError,
		&sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &sh, nil
}

// CreateShipment inserts the record produced by a successful booking.
// There are no placeholder rows: a failed booking never reaches this call.
func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  order_id, user_id, carrier, status,
  pickup_tracking_no,
  pickup_addr, pickup_addr_detail, pickup_zip, pickup_phone,
  delivery_addr, delivery_addr_detail, delivery_zip, delivery_phone,
  booking_req_type, booking_pay_type, booking_req_no, booking_res_no, booking_reg_date,
  fee, origin_office, virtual_tel,
  pickup_requested_at, next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$24)
RETURNING id
`,
		sh.OrderID, sh.UserID, sh.Carrier, sh.Status,
		sh.PickupTrackingNo,
		sh.Pickup.Addr, sh.Pickup.AddrDetail, sh.Pickup.Zip, sh.Pickup.Phone,
		sh.Delivery.Addr, sh.Delivery.AddrDetail, sh.Delivery.Zip, sh.Delivery.Phone,
		sh.Booking.ReqType, sh.Booking.PayType, sh.Booking.ReqNo, sh.Booking.ResNo, sh.Booking.RegDate,
		sh.Fee, sh.OriginOffice, sh.VirtualTelNo,
		sh.PickupRequestedAt, sh.NextCheckAt, now,
	).Scan(&sh.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return errors.Wrap(err, "insert shipment")
	}
	sh.CreatedAt = now
	sh.UpdatedAt = now
	return nil
}

func (s *Storage) GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx,
		`SELECT `+shipmentCols+` FROM shipments WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// RefreshShipment schedules an immediate re-poll.
func (s *Storage) RefreshShipment(ctx context.Context, orderID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE shipments SET next_check_at = now(), updated_at = now() WHERE order_id = $1`, orderID)
	if err != nil {
		return errors.Wrap(err, "refresh shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkCancelled sets the terminal CANCELLED status and clears the tracking
// numbers with it; this is the only path on which an assigned number goes
// away.
func (s *Storage) MarkCancelled(ctx context.Context, orderID string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  status = $2,
  pickup_tracking_no = NULL,
  delivery_tracking_no = NULL,
  updated_at = now()
WHERE order_id = $1
`, orderID, models.StatusCancelled)
	if err != nil {
		return errors.Wrap(err, "mark cancelled")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteShipment(ctx context.Context, orderID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE order_id = $1`, orderID)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimDueShipments picks a batch of shipments ready for a tracking poll and
// leases them so concurrent workers do not double-poll.
// Uses SELECT ... FOR UPDATE SKIP LOCKED; terminal shipments are never
// claimed.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+shipmentCols+`
FROM shipments
WHERE next_check_at <= $1
  AND status NOT IN ($2, $3)
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.StatusDelivered, models.StatusCancelled, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}
	defer rows.Close()

	var picked []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due shipment")
		}
		picked = append(picked, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, sh := range picked {
		_, err := tx.Exec(ctx,
			`UPDATE shipments SET next_check_at = $2, updated_at = now() WHERE id = $1`,
			sh.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		sh.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
