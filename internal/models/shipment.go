package models

import "time"

// Shipment delivery stages, in business order. CANCELLED is reachable from
// any stage before PICKED_UP only.
type Status string

const (
	StatusBooked         Status = "BOOKED"
	StatusPickedUp       Status = "PICKED_UP"
	StatusInTransit      Status = "IN_TRANSIT"
	StatusInbound        Status = "INBOUND"
	StatusProcessing     Status = "PROCESSING"
	StatusReadyToShip    Status = "READY_TO_SHIP"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
)

var statusRank = map[Status]int{
	StatusBooked:         0,
	StatusPickedUp:       1,
	StatusInTransit:      2,
	StatusInbound:        3,
	StatusProcessing:     4,
	StatusReadyToShip:    5,
	StatusOutForDelivery: 6,
	StatusDelivered:      7,
}

// Rank returns the forward position of a non-terminal-cancelled status.
// CANCELLED and unknown statuses report -1.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Cancellable reports whether the parcel is still with the sender.
// After physical pickup the carrier will not void the booking.
func (s Status) Cancellable() bool {
	return s == StatusBooked
}

// Leg identifies which half of the shipment a tracking number covers.
// The carrier uses the same status vocabulary for both halves, so the leg
// decides what a given signal means to the state machine.
type Leg string

const (
	LegPickup   Leg = "PICKUP"
	LegDelivery Leg = "DELIVERY"
)

// AddressSnapshot is copied from the order at booking time; it never joins
// back to a live address book.
type AddressSnapshot struct {
	Addr       string
	AddrDetail string
	Zip        string
	Phone      string
}

// BookingContext captures the carrier-side identifiers and flags issued at
// registration. Cancellation must replay ReqType/PayType verbatim because
// the carrier validates flag parity against its own records.
type BookingContext struct {
	ReqType string
	PayType string
	ReqNo   string
	ResNo   string
	RegDate string // YYYYMMDD, keys the status-inquiry call
}

type Shipment struct {
	ID      uint64
	OrderID string
	UserID  string
	Carrier string

	Status Status

	PickupTrackingNo   *string
	DeliveryTrackingNo *string

	Pickup   AddressSnapshot
	Delivery AddressSnapshot

	Booking BookingContext

	Fee          int
	OriginOffice string
	VirtualTelNo string

	PickupRequestedAt   *time.Time
	PickupCompletedAt   *time.Time
	DeliveryStartedAt   *time.Time
	DeliveryCompletedAt *time.Time

	LastCheckedAt  *time.Time
	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActiveLeg decides which tracking number the reconciler polls and how its
// signals are interpreted. The pickup leg runs through INBOUND (its
// delivered signal means "arrived at the center", never DELIVERED); from
// PROCESSING onward the delivery leg takes over. If the carrier never
// issued a separate delivery number, the pickup number is reused with
// delivery semantics.
func (s *Shipment) ActiveLeg() (Leg, string) {
	pickupNo := ""
	if s.PickupTrackingNo != nil {
		pickupNo = *s.PickupTrackingNo
	}
	if s.Status.Rank() >= StatusProcessing.Rank() {
		if s.DeliveryTrackingNo != nil && *s.DeliveryTrackingNo != "" {
			return LegDelivery, *s.DeliveryTrackingNo
		}
		return LegDelivery, pickupNo
	}
	return LegPickup, pickupNo
}

// TrackingEvent is an immutable carrier observation. Date/Time stay in the
// carrier's own textual form; insertion order is chronological order.
type TrackingEvent struct {
	ID          uint64
	ShipmentID  uint64
	EventDate   string
	EventTime   string
	Location    string
	Status      string
	Description *string
	CreatedAt   time.Time
}
