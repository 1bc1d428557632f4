package pgshipment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  carrier TEXT NOT NULL DEFAULT 'EPOST',
  status TEXT NOT NULL,
  pickup_tracking_no TEXT NULL,
  delivery_tracking_no TEXT NULL,
  pickup_addr TEXT NOT NULL DEFAULT '',
  pickup_addr_detail TEXT NOT NULL DEFAULT '',
  pickup_zip TEXT NOT NULL DEFAULT '',
  pickup_phone TEXT NOT NULL DEFAULT '',
  delivery_addr TEXT NOT NULL DEFAULT '',
  delivery_addr_detail TEXT NOT NULL DEFAULT '',
  delivery_zip TEXT NOT NULL DEFAULT '',
  delivery_phone TEXT NOT NULL DEFAULT '',
  booking_req_type TEXT NOT NULL DEFAULT '',
  booking_pay_type TEXT NOT NULL DEFAULT '',
  booking_req_no TEXT NOT NULL DEFAULT '',
  booking_res_no TEXT NOT NULL DEFAULT '',
  booking_reg_date TEXT NOT NULL DEFAULT '',
  fee INT NOT NULL DEFAULT 0,
  origin_office TEXT NOT NULL DEFAULT '',
  virtual_tel TEXT NOT NULL DEFAULT '',
  pickup_requested_at TIMESTAMPTZ NULL,
  pickup_completed_at TIMESTAMPTZ NULL,
  delivery_started_at TIMESTAMPTZ NULL,
  delivery_completed_at TIMESTAMPTZ NULL,
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  UNIQUE (order_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_next_check_at ON shipments(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  event_date TEXT NOT NULL DEFAULT '',
  event_time TEXT NOT NULL DEFAULT '',
  location TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  description TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_shipment_id ON shipment_events(shipment_id, id)`,
		// Re-polls must not duplicate rows the page already gave us.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipment_events_dedup ON shipment_events(shipment_id, event_date, event_time, location, status)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
