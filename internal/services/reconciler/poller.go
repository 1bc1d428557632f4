package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/scrape"
	"github.com/sellerbay/parcelgate/internal/models"
	"github.com/sellerbay/parcelgate/internal/notify"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

type Repository interface {
	ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Shipment, error)
	ApplyReconcileUpdate(ctx context.Context, upd pgshipment.ReconcileUpdate) error
}

// PageFetcher is the tracking-page source.
type PageFetcher interface {
	Fetch(ctx context.Context, trackingNo string) ([]scrape.Event, error)
}

// StatusFetcher is the structured status-inquiry source.
type StatusFetcher interface {
	TreatStatus(ctx context.Context, req epost.StatusRequest) (string, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller drives the tracking reconciliation: claim due shipments, poll both
// sources, apply at most one forward transition each, notify on change.
type Poller struct {
	repo     Repository
	pages    PageFetcher
	statuses StatusFetcher
	notifier notify.Notifier
	rl       RateLimiter

	customerNo string

	planner *Planner

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration

	rateLimitScrapePerMinute int64
	rateLimitAPIPerMinute    int64

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalProcessed      atomic.Int64
	totalTransitions    atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func NewPoller(repo Repository, pages PageFetcher, statuses StatusFetcher, notifier notify.Notifier, rl RateLimiter, customerNo string) *Poller {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Poller{
		repo: repo, pages: pages, statuses: statuses, notifier: notifier, rl: rl,
		customerNo:               customerNo,
		planner:                  DefaultPlanner(),
		pollInterval:             2 * time.Second,
		batchSize:                100,
		concurrency:              10,
		lease:                    120 * time.Second,
		rateLimitScrapePerMinute: 120,
		rateLimitAPIPerMinute:    120,
		triggerCh:                make(chan struct{}, 1),
		startedAtUnixNano:        time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize, concurrency int, lease time.Duration) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if lease > 0 {
		p.lease = lease
	}
	return p
}

func (p *Poller) WithRateLimits(scrapePerMin, apiPerMin int) *Poller {
	if scrapePerMin > 0 {
		p.rateLimitScrapePerMinute = int64(scrapePerMin)
	}
	if apiPerMin > 0 {
		p.rateLimitAPIPerMinute = int64(apiPerMin)
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt        time.Time  `json:"startedAt"`
	LastCycleAt      *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt    *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed     int64      `json:"totalClaimed"`
	TotalProcessed   int64      `json:"totalProcessed"`
	TotalTransitions int64      `json:"totalTransitions"`
	TotalErrors      int64      `json:"totalErrors"`
	InFlight         int64      `json:"inFlight"`
	LastError        string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:        time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalClaimed:     p.totalClaimed.Load(),
		TotalProcessed:   p.totalProcessed.Load(),
		TotalTransitions: p.totalTransitions.Load(),
		TotalErrors:      p.totalErrors.Load(),
		InFlight:         p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())

	items, err := p.repo.ClaimDueShipments(ctx, now, p.batchSize, p.lease)
	if err != nil {
		slog.Error("claim due shipments", "error", err.Error())
		p.noteError(err)
		return
	}
	p.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, sh := range items {
		sem <- struct{}{}
		wg.Add(1)
		shCopy := sh
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, shCopy); err != nil {
				p.totalErrors.Add(1)
				p.noteError(err)
				slog.Error("process shipment", "order_id", shCopy.OrderID, "error", err.Error())
			}
			p.totalProcessed.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, sh *models.Shipment) error {
	now := time.Now().UTC()
	leg, trackNo := sh.ActiveLeg()

	var scrapeEvents []scrape.Event
	var apiStage string
	var pollErr error

	if trackNo != "" {
		p.throttle(ctx, "scrape", p.rateLimitScrapePerMinute, now)
		scrapeEvents, pollErr = p.pages.Fetch(ctx, trackNo)
	}
	if pollErr == nil && len(scrapeEvents) == 0 {
		p.throttle(ctx, "api", p.rateLimitAPIPerMinute, now)
		apiStage, pollErr = p.statuses.TreatStatus(ctx, epost.StatusRequest{
			CustomerNo: p.customerNo,
			ReqType:    sh.Booking.ReqType,
			OrderNo:    sh.OrderID,
			RegDate:    sh.Booking.RegDate,
		})
	}

	if pollErr != nil {
		e := pollErr.Error()
		return p.repo.ApplyReconcileUpdate(ctx, pgshipment.ReconcileUpdate{
			ShipmentID:  sh.ID,
			CheckedAt:   now,
			NextCheckAt: now.Add(p.planner.BackoffDelay(sh.CheckFailCount + 1)),
			Error:       &e,
		})
	}

	out := Reconcile(Input{
		Current:      sh.Status,
		Leg:          leg,
		ScrapeEvents: scrapeEvents,
		APIStage:     apiStage,
	})

	statusAfter := sh.Status
	if out.NewStatus != nil {
		statusAfter = *out.NewStatus
	}

	if err := p.repo.ApplyReconcileUpdate(ctx, pgshipment.ReconcileUpdate{
		ShipmentID:  sh.ID,
		CheckedAt:   now,
		NextCheckAt: now.Add(p.planner.NextCheckDelay(statusAfter)),
		NewStatus:   out.NewStatus,
		Events:      out.Events,
	}); err != nil {
		return err
	}

	if out.NewStatus != nil {
		p.totalTransitions.Add(1)
		// Notification failure never rolls back the transition.
		if err := p.notifier.Notify(ctx,
			sh.UserID,
			"SHIPMENT_STATUS",
			"배송 상태 변경",
			fmt.Sprintf("주문 %s 배송 상태가 %s(으)로 변경되었습니다.", sh.OrderID, statusLabel(statusAfter)),
			sh.OrderID,
		); err != nil {
			slog.Warn("notify bridge", "order_id", sh.OrderID, "error", err.Error())
		}
	}
	return nil
}

// throttle keeps our own poll volume under the per-source limit. Over the
// limit we back off briefly rather than skip: the carrier tolerates slow,
// not bursty.
func (p *Poller) throttle(ctx context.Context, source string, limit int64, now time.Time) {
	if p.rl == nil || limit <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:epost:%s:%s", source, now.Format("200601021504"))
	allowed, n, err := p.rl.Allow(ctx, minuteKey, limit, 70*time.Second)
	if err != nil {
		slog.Warn("rate limiter", "source", source, "error", err.Error())
		return
	}
	if !allowed {
		slog.Warn("rate limit exceeded", "source", source, "count", n)
		time.Sleep(500 * time.Millisecond)
	}
}

func (p *Poller) noteError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}

func statusLabel(s models.Status) string {
	switch s {
	case models.StatusPickedUp:
		return "집하완료"
	case models.StatusInTransit:
		return "이동중"
	case models.StatusInbound:
		return "집중국 도착"
	case models.StatusProcessing:
		return "구분처리중"
	case models.StatusReadyToShip:
		return "발송준비"
	case models.StatusOutForDelivery:
		return "배달출발"
	case models.StatusDelivered:
		return "배달완료"
	case models.StatusCancelled:
		return "접수취소"
	default:
		return string(s)
	}
}
