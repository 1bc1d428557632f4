package shipments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sellerbay/parcelgate/internal/cache"
	"github.com/sellerbay/parcelgate/internal/models"
)

type Repository interface {
	GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	ListShipmentEvents(ctx context.Context, shipmentID uint64, limit, offset int) ([]*models.TrackingEvent, error)
	RefreshShipment(ctx context.Context, orderID string) error
}

// Service is the read surface for the dashboard/report consumers. They get
// the shipment record and its events, nothing more; all mutation goes
// through booking, cancellation and the reconciler.
type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, cache: c, currentTTL: currentTTL}
}

// GetShipment serves from the redis snapshot when fresh; the cache is best
// effort and never required.
func (s *Service) GetShipment(ctx context.Context, orderID string) (*models.Shipment, error) {
	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(orderID)); err == nil && ok {
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.currentTTL > 0 {
		if b, err := json.Marshal(sh); err == nil {
			_ = s.cache.Set(ctx, currentKey(orderID), b, s.currentTTL)
		}
	}
	return sh, nil
}

func (s *Service) ListEvents(ctx context.Context, orderID string, limit, offset int) ([]*models.TrackingEvent, error) {
	sh, err := s.repo.GetShipmentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListShipmentEvents(ctx, sh.ID, limit, offset)
}

// Refresh schedules an immediate tracking poll for the order.
func (s *Service) Refresh(ctx context.Context, orderID string) error {
	if err := s.repo.RefreshShipment(ctx, orderID); err != nil {
		return err
	}
	s.Invalidate(ctx, orderID)
	return nil
}

// Invalidate drops the cached snapshot; mutating services call it after a
// write so readers do not see a stale status for a full TTL.
func (s *Service) Invalidate(ctx context.Context, orderID string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, currentKey(orderID))
	}
}

func currentKey(orderID string) string {
	return fmt.Sprintf("shipment:%s:current", orderID)
}
