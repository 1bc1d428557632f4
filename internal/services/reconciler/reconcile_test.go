package reconciler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/scrape"
	"github.com/sellerbay/parcelgate/internal/models"
)

func TestClassifyScrapeStatus(t *testing.T) {
	tests := []struct {
		status string
		want   Signal
	}{
		{"접수", SignalPickedUp},
		{"집하완료", SignalPickedUp},
		{"발송", SignalNone},
		{"도착", SignalInTransit},
		{"배달중", SignalInTransit},
		{"배달완료", SignalDelivered},
		{"수령인 본인 수령", SignalDelivered},
		{"", SignalNone},
		{"광고 문구", SignalNone},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ClassifyScrapeStatus(tt.status), "status %q", tt.status)
	}
}

func TestClassifyScrapeStatus_CompletionBeatsArrival(t *testing.T) {
	// "배달완료" contains neither "배달중" nor "도착", but a combined row like
	// this one matches both buckets; completion must win.
	require.Equal(t, SignalDelivered, ClassifyScrapeStatus("물품 도착, 배달완료"))
}

func TestClassifyStage(t *testing.T) {
	require.Equal(t, SignalNone, ClassifyStage(epost.StageNotSubmitted))
	require.Equal(t, SignalPickedUp, ClassifyStage(epost.StageReceived))
	require.Equal(t, SignalPickedUp, ClassifyStage(epost.StageCollected))
	require.Equal(t, SignalInTransit, ClassifyStage(epost.StageInTransit))
	require.Equal(t, SignalInTransit, ClassifyStage(epost.StageOutForDeliver))
	require.Equal(t, SignalDelivered, ClassifyStage(epost.StageDelivered))
	require.Equal(t, SignalNone, ClassifyStage(""))
	require.Equal(t, SignalNone, ClassifyStage("99"))
}

func scrapeRow(status string) scrape.Event {
	return scrape.Event{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: status}
}

func TestReconcile_TerminalIsNoOp(t *testing.T) {
	out := Reconcile(Input{
		Current:      models.StatusDelivered,
		Leg:          models.LegDelivery,
		ScrapeEvents: []scrape.Event{scrapeRow("배달완료")},
	})
	require.Nil(t, out.NewStatus)
	require.Empty(t, out.Events)

	out = Reconcile(Input{Current: models.StatusCancelled, APIStage: epost.StageInTransit})
	require.Nil(t, out.NewStatus)
}

func TestReconcile_ScrapeWinsOverAPI(t *testing.T) {
	out := Reconcile(Input{
		Current:      models.StatusBooked,
		Leg:          models.LegPickup,
		ScrapeEvents: []scrape.Event{scrapeRow("접수")},
		APIStage:     epost.StageDelivered,
	})
	require.Equal(t, "scrape", out.Source)
	require.NotNil(t, out.NewStatus)
	require.Equal(t, models.StatusPickedUp, *out.NewStatus)
	require.Len(t, out.Events, 1)
	require.Equal(t, "접수", out.Events[0].Status)
}

func TestReconcile_APIFallbackSynthesizesEvent(t *testing.T) {
	out := Reconcile(Input{
		Current:  models.StatusBooked,
		Leg:      models.LegPickup,
		APIStage: epost.StageCollected,
	})
	require.Equal(t, "api", out.Source)
	require.NotNil(t, out.NewStatus)
	require.Equal(t, models.StatusPickedUp, *out.NewStatus)
	require.Len(t, out.Events, 1)
	require.Equal(t, string(models.StatusPickedUp), out.Events[0].Status)
	require.NotNil(t, out.Events[0].Description)
	require.Equal(t, "stage 02", *out.Events[0].Description)
}

func TestReconcile_LastRowDecides(t *testing.T) {
	out := Reconcile(Input{
		Current: models.StatusPickedUp,
		Leg:     models.LegPickup,
		ScrapeEvents: []scrape.Event{
			scrapeRow("접수"),
			scrapeRow("발송"),
			scrapeRow("도착"),
		},
	})
	require.NotNil(t, out.NewStatus)
	require.Equal(t, models.StatusInTransit, *out.NewStatus)
	// All rows are still recorded, dedup happens at the storage layer.
	require.Len(t, out.Events, 3)
}

func TestReconcile_EventsKeptEvenWithoutTransition(t *testing.T) {
	// Same signal again: no move, but the rows still flow to storage.
	out := Reconcile(Input{
		Current:      models.StatusPickedUp,
		Leg:          models.LegPickup,
		ScrapeEvents: []scrape.Event{scrapeRow("접수")},
	})
	require.Nil(t, out.NewStatus)
	require.Equal(t, "scrape", out.Source)
	require.Len(t, out.Events, 1)
}

func TestNextStatus_PickupLegDeliveredMeansInbound(t *testing.T) {
	next, ok := nextStatus(models.StatusInTransit, models.LegPickup, SignalDelivered)
	require.True(t, ok)
	require.Equal(t, models.StatusInbound, next)

	// Once inbound, a repeated delivered signal advances to processing.
	next, ok = nextStatus(models.StatusInbound, models.LegPickup, SignalDelivered)
	require.True(t, ok)
	require.Equal(t, models.StatusProcessing, next)
}

func TestNextStatus_DeliveryLegMatrix(t *testing.T) {
	next, ok := nextStatus(models.StatusProcessing, models.LegDelivery, SignalPickedUp)
	require.True(t, ok)
	require.Equal(t, models.StatusReadyToShip, next)

	next, ok = nextStatus(models.StatusReadyToShip, models.LegDelivery, SignalInTransit)
	require.True(t, ok)
	require.Equal(t, models.StatusOutForDelivery, next)

	next, ok = nextStatus(models.StatusReadyToShip, models.LegDelivery, SignalDelivered)
	require.True(t, ok)
	require.Equal(t, models.StatusDelivered, next)
}

func TestNextStatus_RefusesBackwardAndSameState(t *testing.T) {
	_, ok := nextStatus(models.StatusInTransit, models.LegPickup, SignalPickedUp)
	require.False(t, ok)

	_, ok = nextStatus(models.StatusPickedUp, models.LegPickup, SignalPickedUp)
	require.False(t, ok)

	_, ok = nextStatus(models.StatusOutForDelivery, models.LegDelivery, SignalInTransit)
	require.False(t, ok)
}

func TestNextStatus_NoSignalNoMove(t *testing.T) {
	_, ok := nextStatus(models.StatusBooked, models.LegPickup, SignalNone)
	require.False(t, ok)
}
