package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/integrations/epost"
	"github.com/sellerbay/parcelgate/internal/models"
	"github.com/sellerbay/parcelgate/internal/services/booking"
	"github.com/sellerbay/parcelgate/internal/services/cancel"
	"github.com/sellerbay/parcelgate/internal/services/shipments"
	"github.com/sellerbay/parcelgate/internal/storage/pgshipment"
)

type parcelAPIOpts struct {
	httpAddr string

	onListen func(httpAddr string)
}

type apiDeps struct {
	booking   *booking.Service
	cancel    *cancel.Service
	shipments *shipments.Service
}

func runParcelAPI(ctx context.Context, opts parcelAPIOpts, deps apiDeps) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	mountRoutes(r, deps)

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelFn := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelFn()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("http server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

func mountRoutes(r chi.Router, deps apiDeps) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/v1/shipments", func(r chi.Router) {
		r.Post("/", handleBook(deps.booking))
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", handleGetShipment(deps.shipments))
			r.Delete("/", handleCancel(deps.cancel, deps.shipments))
			r.Get("/events", handleListEvents(deps.shipments))
			r.Post("/refresh", handleRefresh(deps.shipments))
		})
	})
}

type bookRequest struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`

	ReqType string `json:"req_type"`
	PayType string `json:"pay_type"`

	SenderName       string `json:"sender_name"`
	SenderZip        string `json:"sender_zip"`
	SenderAddr       string `json:"sender_addr"`
	SenderDetailAddr string `json:"sender_detail_addr"`
	SenderPhone      string `json:"sender_phone"`

	RecvName       string `json:"recv_name"`
	RecvZip        string `json:"recv_zip"`
	RecvAddr       string `json:"recv_addr"`
	RecvDetailAddr string `json:"recv_detail_addr"`
	RecvPhone      string `json:"recv_phone"`

	GoodsName     string `json:"goods_name"`
	Weight        int    `json:"weight"`
	Volume        int    `json:"volume"`
	InsuredAmount int    `json:"insured_amount"`
}

func (b bookRequest) params() booking.Params {
	return booking.Params{
		OrderID: b.OrderID,
		UserID:  b.UserID,

		ReqType: b.ReqType,
		PayType: b.PayType,

		SenderName:       b.SenderName,
		SenderZip:        b.SenderZip,
		SenderAddr:       b.SenderAddr,
		SenderDetailAddr: b.SenderDetailAddr,
		SenderPhone:      b.SenderPhone,

		RecvName:       b.RecvName,
		RecvZip:        b.RecvZip,
		RecvAddr:       b.RecvAddr,
		RecvDetailAddr: b.RecvDetailAddr,
		RecvPhone:      b.RecvPhone,

		GoodsName:     b.GoodsName,
		Weight:        b.Weight,
		Volume:        b.Volume,
		InsuredAmount: b.InsuredAmount,
	}
}

type shipmentResponse struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`

	PickupTrackingNo   *string `json:"pickup_tracking_no,omitempty"`
	DeliveryTrackingNo *string `json:"delivery_tracking_no,omitempty"`

	Fee          int    `json:"fee"`
	OriginOffice string `json:"origin_office,omitempty"`
	VirtualTelNo string `json:"virtual_tel_no,omitempty"`

	PickupRequestedAt   *time.Time `json:"pickup_requested_at,omitempty"`
	PickupCompletedAt   *time.Time `json:"pickup_completed_at,omitempty"`
	DeliveryStartedAt   *time.Time `json:"delivery_started_at,omitempty"`
	DeliveryCompletedAt *time.Time `json:"delivery_completed_at,omitempty"`

	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	NextCheckAt   time.Time  `json:"next_check_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toShipmentResponse(sh *models.Shipment) shipmentResponse {
	return shipmentResponse{
		OrderID: sh.OrderID,
		UserID:  sh.UserID,
		Status:  string(sh.Status),

		PickupTrackingNo:   sh.PickupTrackingNo,
		DeliveryTrackingNo: sh.DeliveryTrackingNo,

		Fee:          sh.Fee,
		OriginOffice: sh.OriginOffice,
		VirtualTelNo: sh.VirtualTelNo,

		PickupRequestedAt:   sh.PickupRequestedAt,
		PickupCompletedAt:   sh.PickupCompletedAt,
		DeliveryStartedAt:   sh.DeliveryStartedAt,
		DeliveryCompletedAt: sh.DeliveryCompletedAt,

		LastCheckedAt: sh.LastCheckedAt,
		NextCheckAt:   sh.NextCheckAt,

		CreatedAt: sh.CreatedAt,
		UpdatedAt: sh.UpdatedAt,
	}
}

type eventResponse struct {
	EventDate   string  `json:"event_date"`
	EventTime   string  `json:"event_time"`
	Location    string  `json:"location"`
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
}

func handleBook(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body", nil)
			return
		}
		sh, err := svc.Book(r.Context(), req.params())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toShipmentResponse(sh))
	}
}

func handleCancel(svc *cancel.Service, reads *shipments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := chi.URLParam(r, "orderID")
		deleteAfter := r.URL.Query().Get("delete") == "true"
		out, err := svc.Cancel(r.Context(), orderID, deleteAfter)
		if err != nil {
			writeError(w, err)
			return
		}
		// The cached snapshot still carries the pre-cancel status.
		reads.Invalidate(r.Context(), orderID)
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetShipment(svc *shipments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sh, err := svc.GetShipment(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toShipmentResponse(sh))
	}
}

func handleListEvents(svc *shipments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100)
		offset := queryInt(r, "offset", 0)
		evs, err := svc.ListEvents(r.Context(), chi.URLParam(r, "orderID"), limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]eventResponse, 0, len(evs))
		for _, ev := range evs {
			out = append(out, eventResponse{
				EventDate:   ev.EventDate,
				EventTime:   ev.EventTime,
				Location:    ev.Location,
				Status:      ev.Status,
				Description: ev.Description,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": out})
	}
}

func handleRefresh(svc *shipments.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Refresh(r.Context(), chi.URLParam(r, "orderID")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"refreshed": true})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeError maps the service error taxonomy to HTTP statuses. Carrier-side
// failures surface as gateway errors so the caller can tell them apart from
// our own.
func writeError(w http.ResponseWriter, err error) {
	var invalid *epost.InvalidParamsError
	switch {
	case errors.As(err, &invalid):
		writeJSONError(w, http.StatusBadRequest, invalid.Error(), invalid.Fields)
	case errors.Is(err, pgshipment.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "shipment not found", nil)
	case errors.Is(err, booking.ErrAlreadyBooked):
		writeJSONError(w, http.StatusConflict, booking.ErrAlreadyBooked.Error(), nil)
	case errors.Is(err, cancel.ErrCannotCancel):
		writeJSONError(w, http.StatusConflict, cancel.ErrCannotCancel.Error(), nil)
	case errors.Is(err, booking.ErrMissingTrackingNo):
		writeJSONError(w, http.StatusBadGateway, booking.ErrMissingTrackingNo.Error(), nil)
	default:
		var timeout *epost.TimeoutError
		var network *epost.NetworkError
		var httpErr *epost.HTTPError
		var apiErr *epost.APIError
		switch {
		case errors.As(err, &timeout):
			writeJSONError(w, http.StatusGatewayTimeout, timeout.Error(), nil)
		case errors.As(err, &network), errors.As(err, &httpErr), errors.As(err, &apiErr):
			writeJSONError(w, http.StatusBadGateway, err.Error(), nil)
		default:
			slog.Error("request failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error", nil)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string, fields []string) {
	out := map[string]any{"error": msg}
	if len(fields) > 0 {
		out["fields"] = fields
	}
	writeJSON(w, status, out)
}
