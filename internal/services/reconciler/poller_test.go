package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/scrape"
	"github.com/sellerbay/parcelgate/internal/models"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

type stubRepo struct {
	mu      sync.Mutex
	claims  [][]*models.Shipment
	updates []pgshipment.ReconcileUpdate
}

func (r *stubRepo) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.claims) == 0 {
		return nil, nil
	}
	batch := r.claims[0]
	r.claims = r.claims[1:]
	return batch, nil
}

func (r *stubRepo) ApplyReconcileUpdate(ctx context.Context, upd pgshipment.ReconcileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
	return nil
}

func (r *stubRepo) lastUpdate(t *testing.T) pgshipment.ReconcileUpdate {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.updates)
	return r.updates[len(r.updates)-1]
}

type stubPages struct {
	events []scrape.Event
	err    error
	calls  int
	lastNo string
}

func (p *stubPages) Fetch(ctx context.Context, trackingNo string) ([]scrape.Event, error) {
	p.calls++
	p.lastNo = trackingNo
	return p.events, p.err
}

type stubStatuses struct {
	stage string
	err   error
	calls int
}

func (s *stubStatuses) TreatStatus(ctx context.Context, req epost.StatusRequest) (string, error) {
	s.calls++
	return s.stage, s.err
}

type captureNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *captureNotifier) Notify(ctx context.Context, userID, typ, title, body, orderID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, orderID)
	return n.err
}

func strp(s string) *string { return &s }

func bookedShipment() *models.Shipment {
	return &models.Shipment{
		ID:               1,
		OrderID:          "ORD-1",
		UserID:           "user-7",
		Status:           models.StatusBooked,
		PickupTrackingNo: strp("6912345678901"),
		Booking:          models.BookingContext{ReqType: "1", RegDate: "20260829"},
	}
}

func TestProcessOne_ScrapeTransitionNotifies(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: "접수"},
	}}
	statuses := &stubStatuses{}
	nt := &captureNotifier{}

	p := NewPoller(repo, pages, statuses, nt, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), bookedShipment()))

	require.Equal(t, "6912345678901", pages.lastNo)
	// Scrape had rows, so the structured call stays unused.
	require.Zero(t, statuses.calls)

	upd := repo.lastUpdate(t)
	require.NotNil(t, upd.NewStatus)
	require.Equal(t, models.StatusPickedUp, *upd.NewStatus)
	require.Len(t, upd.Events, 1)
	require.Nil(t, upd.Error)
	require.Equal(t, []string{"ORD-1"}, nt.calls)
}

func TestProcessOne_APIFallback(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{} // page has no rows yet
	statuses := &stubStatuses{stage: epost.StageCollected}
	nt := &captureNotifier{}

	p := NewPoller(repo, pages, statuses, nt, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), bookedShipment()))

	require.Equal(t, 1, pages.calls)
	require.Equal(t, 1, statuses.calls)

	upd := repo.lastUpdate(t)
	require.NotNil(t, upd.NewStatus)
	require.Equal(t, models.StatusPickedUp, *upd.NewStatus)
	require.Len(t, nt.calls, 1)
}

func TestProcessOne_NoChangeNoNotify(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: "접수"},
	}}
	nt := &captureNotifier{}

	sh := bookedShipment()
	sh.Status = models.StatusPickedUp

	p := NewPoller(repo, pages, &stubStatuses{}, nt, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), sh))

	upd := repo.lastUpdate(t)
	require.Nil(t, upd.NewStatus)
	// Rows are still persisted for the event history.
	require.Len(t, upd.Events, 1)
	require.Empty(t, nt.calls)
}

func TestProcessOne_PollErrorBacksOff(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{err: errors.New("page unreachable")}
	nt := &captureNotifier{}

	sh := bookedShipment()
	sh.CheckFailCount = 1

	p := NewPoller(repo, pages, &stubStatuses{}, nt, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), sh))

	upd := repo.lastUpdate(t)
	require.NotNil(t, upd.Error)
	require.Contains(t, *upd.Error, "page unreachable")
	require.Nil(t, upd.NewStatus)
	require.Empty(t, nt.calls)

	// Second consecutive failure lands on the second backoff rung.
	delay := upd.NextCheckAt.Sub(upd.CheckedAt)
	require.Equal(t, 15*time.Minute, delay)
}

func TestProcessOne_NotifyFailureDoesNotFail(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: "접수"},
	}}
	nt := &captureNotifier{err: errors.New("broker down")}

	p := NewPoller(repo, pages, &stubStatuses{}, nt, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), bookedShipment()))

	upd := repo.lastUpdate(t)
	require.NotNil(t, upd.NewStatus)
}

func TestProcessOne_DeliveryLegUsesDeliverySemantics(t *testing.T) {
	repo := &stubRepo{}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.31", Time: "14:00", Location: "인천", Status: "배달완료"},
	}}

	sh := bookedShipment()
	sh.Status = models.StatusOutForDelivery
	sh.DeliveryTrackingNo = strp("6900000000002")

	p := NewPoller(repo, pages, &stubStatuses{}, &captureNotifier{}, nil, "CUST001")
	require.NoError(t, p.processOne(context.Background(), sh))

	require.Equal(t, "6900000000002", pages.lastNo)
	upd := repo.lastUpdate(t)
	require.NotNil(t, upd.NewStatus)
	require.Equal(t, models.StatusDelivered, *upd.NewStatus)
}

func TestRunOnce_ProcessesClaimedBatch(t *testing.T) {
	repo := &stubRepo{claims: [][]*models.Shipment{{bookedShipment()}}}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: "접수"},
	}}

	p := NewPoller(repo, pages, &stubStatuses{}, &captureNotifier{}, nil, "CUST001")
	p.runOnce(context.Background())

	st := p.Stats()
	require.Equal(t, int64(1), st.TotalClaimed)
	require.Equal(t, int64(1), st.TotalProcessed)
	require.Equal(t, int64(1), st.TotalTransitions)
	require.Zero(t, st.TotalErrors)
}

func TestRun_TriggerAndStop(t *testing.T) {
	repo := &stubRepo{claims: [][]*models.Shipment{{bookedShipment()}}}
	pages := &stubPages{events: []scrape.Event{
		{Date: "2026.08.30", Time: "09:00", Location: "서울", Status: "접수"},
	}}

	p := NewPoller(repo, pages, &stubStatuses{}, &captureNotifier{}, nil, "CUST001").
		WithSettings(time.Hour, 10, 2, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Trigger()
	require.Eventually(t, func() bool {
		return p.Stats().TotalProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
