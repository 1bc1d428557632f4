package reconciler

import (
	"strings"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/integrations/epost/scrape"
	"github.com/sellerbay/parcelgate/internal/models"
)

// Signal is the normalized meaning of whatever a tracking source reported.
// What a signal does to the shipment depends on which leg produced it.
type Signal int

const (
	SignalNone Signal = iota
	SignalPickedUp
	SignalInTransit
	SignalDelivered
)

// ClassifyScrapeStatus maps the tracking page's free-text status to a
// signal. Completion phrases are checked first: "배달완료" would otherwise
// also match the in-transit "배달중/도착" bucket.
func ClassifyScrapeStatus(status string) Signal {
	switch {
	case strings.Contains(status, "배달완료"), strings.Contains(status, "수령"):
		return SignalDelivered
	case strings.Contains(status, "배달중"), strings.Contains(status, "도착"):
		return SignalInTransit
	case strings.Contains(status, "집하"), strings.Contains(status, "접수"):
		return SignalPickedUp
	default:
		return SignalNone
	}
}

// ClassifyStage maps the status-inquiry stage code to a signal.
// "00" (not submitted) carries no information.
func ClassifyStage(code string) Signal {
	switch code {
	case epost.StageReceived, epost.StageCollected:
		return SignalPickedUp
	case epost.StageInTransit, epost.StageOutForDeliver:
		return SignalInTransit
	case epost.StageDelivered:
		return SignalDelivered
	default:
		return SignalNone
	}
}

// Input is everything one poll gathered for one shipment.
type Input struct {
	Current models.Status
	Leg     models.Leg

	ScrapeEvents []scrape.Event
	APIStage     string
}

// Outcome is the pure reconciliation result. NewStatus is nil when nothing
// moved; Events are the rows to append (deduplicated downstream).
type Outcome struct {
	NewStatus *models.Status
	Events    []*models.TrackingEvent
	Source    string // "scrape" | "api" | ""
}

// Reconcile merges the two tracking sources into at most one forward state
// transition. Scraped text wins when the page had rows; the structured
// stage code is the fallback. Pure function; the poller owns fetching and
// persistence.
func Reconcile(in Input) Outcome {
	if in.Current.Terminal() {
		return Outcome{}
	}

	var out Outcome
	sig := SignalNone

	if len(in.ScrapeEvents) > 0 {
		out.Source = "scrape"
		last := in.ScrapeEvents[len(in.ScrapeEvents)-1]
		sig = ClassifyScrapeStatus(last.Status)
		for _, ev := range in.ScrapeEvents {
			out.Events = append(out.Events, &models.TrackingEvent{
				EventDate: ev.Date,
				EventTime: ev.Time,
				Location:  ev.Location,
				Status:    ev.Status,
			})
		}
	} else if sig = ClassifyStage(in.APIStage); sig != SignalNone {
		out.Source = "api"
	}

	if sig == SignalNone {
		out.Source = ""
		return out
	}

	next, ok := nextStatus(in.Current, in.Leg, sig)
	if !ok {
		return out
	}
	out.NewStatus = &next

	// The structured call yields no page rows; synthesize the event that
	// records this transition.
	if out.Source == "api" {
		out.Events = append(out.Events, &models.TrackingEvent{
			Status:      string(next),
			Description: strPtr("stage " + in.APIStage),
		})
	}
	return out
}

// nextStatus gates the state machine. The same signal vocabulary means
// different things per leg: a delivered pickup leg has only reached the
// carrier's center, while a delivered delivery leg is the real thing.
// Backward and same-state moves are refused, which is what makes re-polls
// idempotent.
func nextStatus(cur models.Status, leg models.Leg, sig Signal) (models.Status, bool) {
	var target models.Status
	switch leg {
	case models.LegPickup:
		switch sig {
		case SignalPickedUp:
			target = models.StatusPickedUp
		case SignalInTransit:
			target = models.StatusInTransit
		case SignalDelivered:
			if cur == models.StatusInbound {
				target = models.StatusProcessing
			} else {
				target = models.StatusInbound
			}
		}
	case models.LegDelivery:
		switch sig {
		case SignalPickedUp:
			target = models.StatusReadyToShip
		case SignalInTransit:
			target = models.StatusOutForDelivery
		case SignalDelivered:
			target = models.StatusDelivered
		}
	}
	if target == "" || target.Rank() <= cur.Rank() {
		return "", false
	}
	return target, true
}

func strPtr(s string) *string { return &s }
