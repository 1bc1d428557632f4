package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/models"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

var (
	// ErrAlreadyBooked: a shipment record exists for the order; tracking
	// numbers are never reassigned.
	ErrAlreadyBooked = errors.New("shipment already booked for this order")
	// ErrMissingTrackingNo: the carrier answered success but issued no
	// tracking number. Treated as a failure; no record is persisted.
	ErrMissingTrackingNo = errors.New("carrier response carried no tracking number")
)

const (
	defaultWeightKg = 2
	defaultVolumeCm = 60
	defaultReqType  = "1"
	defaultPayType  = "1"

	// The carrier rejects a blank detail address outright; this literal is
	// the value its own web form submits for "none".
	detailAddrPlaceholder = "상세주소없음"

	// First poll soon after booking; afterwards the planner takes over.
	firstCheckDelay = 10 * time.Minute
)

type Repository interface {
	GetShipmentByOrderID(ctx context.Context, orderID string) (*models.Shipment, error)
	CreateShipment(ctx context.Context, sh *models.Shipment) error
}

// Params is the caller-facing booking input, before normalization.
type Params struct {
	OrderID string
	UserID  string

	ReqType string
	PayType string

	SenderName       string
	SenderZip        string
	SenderAddr       string
	SenderDetailAddr string
	SenderPhone      string

	RecvName       string
	RecvZip        string
	RecvAddr       string
	RecvDetailAddr string
	RecvPhone      string

	GoodsName     string
	Weight        int
	Volume        int
	InsuredAmount int
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

// Book registers the parcel with the carrier and persists the shipment
// record. Persistence happens only after a validated upstream success; a
// failed call leaves no record behind.
func (s *Service) Book(ctx context.Context, p Params) (*models.Shipment, error) {
	if err := validate(&p); err != nil {
		return nil, err
	}
	normalize(&p)

	if _, err := s.repo.GetShipmentByOrderID(ctx, p.OrderID); err == nil {
		return nil, ErrAlreadyBooked
	} else if !errors.Is(err, pgshipment.ErrNotFound) {
		return nil, err
	}

	insuredYn := "N"
	if p.InsuredAmount > 0 {
		insuredYn = "Y"
	}

	res, err := s.gw.Register(ctx, epost.RegisterRequest{
		CustomerNo:       s.customerNo,
		OrderNo:          p.OrderID,
		ReqType:          p.ReqType,
		PayType:          p.PayType,
		SenderName:       p.SenderName,
		SenderZip:        p.SenderZip,
		SenderAddr:       p.SenderAddr,
		SenderDetailAddr: p.SenderDetailAddr,
		SenderTel:        p.SenderPhone,
		RecvName:         p.RecvName,
		RecvZip:          p.RecvZip,
		RecvAddr:         p.RecvAddr,
		RecvDetailAddr:   p.RecvDetailAddr,
		RecvTel:          p.RecvPhone,
		GoodsName:        p.GoodsName,
		Weight:           p.Weight,
		Volume:           p.Volume,
		InsuredYn:        insuredYn,
		InsuredAmount:    p.InsuredAmount,
		TestYn:           s.testYn,
	})
	if err != nil {
		return nil, err
	}
	if res.RegiNo == "" {
		return nil, ErrMissingTrackingNo
	}

	now := time.Now().UTC()
	regDate := res.ResDate
	if regDate == "" {
		regDate = now.Format("20060102")
	}

	sh := &models.Shipment{
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		Carrier:          "EPOST",
		Status:           models.StatusBooked,
		PickupTrackingNo: &res.RegiNo,
		Pickup: models.AddressSnapshot{
			Addr:       p.SenderAddr,
			AddrDetail: p.SenderDetailAddr,
			Zip:        p.SenderZip,
			Phone:      p.SenderPhone,
		},
		Delivery: models.AddressSnapshot{
			Addr:       p.RecvAddr,
			AddrDetail: p.RecvDetailAddr,
			Zip:        p.RecvZip,
			Phone:      p.RecvPhone,
		},
		Booking: models.BookingContext{
			ReqType: p.ReqType,
			PayType: p.PayType,
			ReqNo:   res.ReqNo,
			ResNo:   res.ResNo,
			RegDate: regDate,
		},
		Fee:               res.Price,
		OriginOffice:      res.RegiPoNm,
		VirtualTelNo:      res.VTelNo,
		PickupRequestedAt: &now,
		NextCheckAt:       now.Add(firstCheckDelay),
	}

	if err := s.repo.CreateShipment(ctx, sh); err != nil {
		if errors.Is(err, pgshipment.ErrDuplicateOrder) {
			return nil, ErrAlreadyBooked
		}
		return nil, err
	}

	slog.Info("parcel booked",
		"order_id", p.OrderID,
		"tracking_no", res.RegiNo,
		"fee", res.Price,
		"origin_office", res.RegiPoNm,
	)
	return sh, nil
}

// validate collects every caller-data problem into one error before
// anything goes upstream.
func validate(p *Params) error {
	var bad []string
	if strings.TrimSpace(p.OrderID) == "" {
		bad = append(bad, "orderId (blank)")
	}
	if strings.TrimSpace(p.UserID) == "" {
		bad = append(bad, "userId (blank)")
	}
	zip := normalizeZip(p.RecvZip)
	if !validZip(zip) {
		bad = append(bad, fmt.Sprintf("recvZip (must be exactly 5 digits, got %q)", p.RecvZip))
	} else {
		p.RecvZip = zip
	}
	if senderZip := normalizeZip(p.SenderZip); validZip(senderZip) {
		p.SenderZip = senderZip
	}
	if len(bad) > 0 {
		return &epost.InvalidParamsError{Fields: bad}
	}
	return nil
}

// normalize applies the documented silent defaults: absent or non-positive
// weight and volume fall back to the carrier minimums, a blank detail
// address becomes the accepted placeholder, and unset type flags take the
// standard pickup/prepaid values.
func normalize(p *Params) {
	if p.Weight <= 0 {
		p.Weight = defaultWeightKg
	}
	if p.Volume <= 0 {
		p.Volume = defaultVolumeCm
	}
	if strings.TrimSpace(p.RecvDetailAddr) == "" {
		p.RecvDetailAddr = detailAddrPlaceholder
	}
	if strings.TrimSpace(p.SenderDetailAddr) == "" {
		p.SenderDetailAddr = detailAddrPlaceholder
	}
	if p.ReqType == "" {
		p.ReqType = defaultReqType
	}
	if p.PayType == "" {
		p.PayType = defaultPayType
	}
}

func normalizeZip(zip string) string {
	zip = strings.ReplaceAll(zip, "-", "")
	return strings.TrimSpace(zip)
}

func validZip(zip string) bool {
	if len(zip) != 5 {
		return false
	}
	for _, r := range zip {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
