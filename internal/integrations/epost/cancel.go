package epost

import "context"

// CancelRegistration voids a booking upstream. The request/payment type
// flags must be the booking-time values: the carrier validates flag parity
// against its own records and rejects mismatches.
func (c *Client) CancelRegistration(ctx context.Context, req CancelRequest) error {
	f := NewFields().
		Add("custNo", req.CustomerNo).
		Add("reqNo", req.ReqNo).
		Add("resNo", req.ResNo).
		Add("regiNo", req.RegiNo).
		Add("reqType", req.ReqType).
		Add("payType", req.PayType)

	_, err := c.Call(ctx, endpointCancel, f, true, req.TestYn)
	return err
}
