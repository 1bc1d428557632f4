package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestStatusRank_StrictlyIncreasing(t *testing.T) {
	order := []Status{
		StatusBooked,
		StatusPickedUp,
		StatusInTransit,
		StatusInbound,
		StatusProcessing,
		StatusReadyToShip,
		StatusOutForDelivery,
		StatusDelivered,
	}
	for i := 1; i < len(order); i++ {
		require.Greater(t, order[i].Rank(), order[i-1].Rank(),
			"%s must rank above %s", order[i], order[i-1])
	}
}

func TestStatusTerminal(t *testing.T) {
	require.True(t, StatusDelivered.Terminal())
	require.True(t, StatusCancelled.Terminal())
	require.False(t, StatusBooked.Terminal())
	require.False(t, StatusOutForDelivery.Terminal())
}

func TestStatusCancellable(t *testing.T) {
	require.True(t, StatusBooked.Cancellable())
	for _, s := range []Status{
		StatusPickedUp, StatusInTransit, StatusInbound, StatusProcessing,
		StatusReadyToShip, StatusOutForDelivery, StatusDelivered, StatusCancelled,
	} {
		require.False(t, s.Cancellable(), "status %s", s)
	}
}

func TestActiveLeg_PickupPhase(t *testing.T) {
	sh := &Shipment{
		Status:           StatusInTransit,
		PickupTrackingNo: strp("PICK-1"),
	}
	leg, no := sh.ActiveLeg()
	require.Equal(t, LegPickup, leg)
	require.Equal(t, "PICK-1", no)

	// Inbound is still the pickup leg: its delivered signal only means the
	// parcel reached the center.
	sh.Status = StatusInbound
	leg, _ = sh.ActiveLeg()
	require.Equal(t, LegPickup, leg)
}

func TestActiveLeg_DeliveryPhase(t *testing.T) {
	sh := &Shipment{
		Status:             StatusProcessing,
		PickupTrackingNo:   strp("PICK-1"),
		DeliveryTrackingNo: strp("DELIV-2"),
	}
	leg, no := sh.ActiveLeg()
	require.Equal(t, LegDelivery, leg)
	require.Equal(t, "DELIV-2", no)
}

func TestActiveLeg_ReusesPickupNumberWithoutDeliveryNumber(t *testing.T) {
	sh := &Shipment{
		Status:           StatusOutForDelivery,
		PickupTrackingNo: strp("PICK-1"),
	}
	leg, no := sh.ActiveLeg()
	require.Equal(t, LegDelivery, leg)
	require.Equal(t, "PICK-1", no)
}

func TestActiveLeg_NoNumbers(t *testing.T) {
	sh := &Shipment{Status: StatusBooked}
	leg, no := sh.ActiveLeg()
	require.Equal(t, LegPickup, leg)
	require.Empty(t, no)
}
