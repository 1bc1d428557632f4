// Package fake fabricates structurally valid carrier responses so the rest
// of the system can run without credentials. The gateway factory only
// selects it when the cipher key is absent and mock mode is allowed; it is
// unreachable in a live-configured deployment.
package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
)

type Gateway struct{}

func New() *Gateway { return &Gateway{} }

// Register fabricates a tracking number in the carrier's 13-digit format,
// deterministic per order so repeated runs agree.
func (g *Gateway) Register(ctx context.Context, req epost.RegisterRequest) (epost.RegisterResult, error) {
	v := orderHash(req.CustomerNo, req.OrderNo)

	price := 4000
	if req.Weight > 2 {
		price += 1000 * (req.Weight - 2)
	}

	return epost.RegisterResult{
		ReqNo:    fmt.Sprintf("MOCK%08d", v%100_000_000),
		ResNo:    fmt.Sprintf("R%09d", v%1_000_000_000),
		RegiNo:   fmt.Sprintf("69%011d", uint64(v)*31%100_000_000_000),
		RegiPoNm: "우편집중국",
		ResDate:  time.Now().UTC().Format("20060102"),
		Price:    price,
	}, nil
}

// CancelRegistration always succeeds; there is nothing upstream to void.
func (g *Gateway) CancelRegistration(ctx context.Context, req epost.CancelRequest) error {
	return nil
}

// TreatStatus cycles a deterministic stage per order, skewed toward
// in-transit so poll loops have something to chew on.
func (g *Gateway) TreatStatus(ctx context.Context, req epost.StatusRequest) (string, error) {
	v := orderHash(req.CustomerNo, req.OrderNo)
	switch v % 5 {
	case 0:
		return epost.StageDelivered, nil
	case 1:
		return epost.StageCollected, nil
	case 2:
		return epost.StageOutForDeliver, nil
	default:
		return epost.StageInTransit, nil
	}
}

func orderHash(customerNo, orderNo string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerNo))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(orderNo))
	return h.Sum32()
}
