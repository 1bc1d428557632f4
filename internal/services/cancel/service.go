package cancel

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/models"
)

// ErrCannotCancel: the parcel has been physically picked up; the carrier
// will not void the booking and neither do we.
var ErrCannotCancel = errors.New("shipment already past pickup; cancellation refused")

type Repository interface {
	GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	MarkCancelled(ctx context.Context, orderID string) error
	DeleteShipment(ctx context.Context, orderID string) error
}

type Outcome struct {
	Cancelled bool `json:"cancelled"`
	Deleted   bool `json:"deleted"`
}

type Service struct {
	repo       Repository
	gw         epost.Gateway
	customerNo string
	testYn     string
}

func New(repo Repository, gw epost.Gateway, customerNo string, testMode bool) *Service {
	testYn := "N"
	if testMode {
		testYn = "Y"
	}
	return &Service{repo: repo, gw: gw, customerNo: customerNo, testYn: testYn}
}

// Cancel voids the booking upstream and marks the local record CANCELLED.
// The carrier call replays the booking-time identifiers and flags exactly
// as persisted; substituting current defaults would fail its flag-parity
// check. A "no matching reservation" answer is a soft success: such
// bookings came from the mock gateway and never existed upstream.
func (s *Service) Cancel(ctx context.Context, orderID string, deleteAfter bool) (Outcome, error) {
	sh, err := s.repo.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}

	if sh.Status != models.StatusCancelled {
		if !sh.Status.Cancellable() {
			return Outcome{}, ErrCannotCancel
		}

		regiNo := ""
		if sh.PickupTrackingNo != nil {
			regiNo = *sh.PickupTrackingNo
		}

		err = s.gw.CancelRegistration(ctx, epost.CancelRequest{
			CustomerNo: s.customerNo,
			ReqNo:      sh.Booking.ReqNo,
			ResNo:      sh.Booking.ResNo,
			RegiNo:     regiNo,
			ReqType:    sh.Booking.ReqType,
			PayType:    sh.Booking.PayType,
			TestYn:     s.testYn,
		})
		if err != nil {
			var apiErr *epost.APIError
			if errors.As(err, &apiErr) && apiErr.Code == epost.CodeNoReservation {
				slog.Info("carrier has no reservation; cancelling locally",
					"order_id", orderID, "code", apiErr.Code)
			} else {
				// Hard failure: the local record stays untouched.
				return Outcome{}, err
			}
		}

		if err := s.repo.MarkCancelled(ctx, orderID); err != nil {
			return Outcome{}, err
		}
	}

	out := Outcome{Cancelled: true}
	if deleteAfter {
		if err := s.repo.DeleteShipment(ctx, orderID); err != nil {
			return out, err
		}
		out.Deleted = true
	}
	return out, nil
}
