package epost

import "context"

// Delivery stage codes returned by the status-inquiry call.
const (
	StageNotSubmitted  = "00"
	StageReceived      = "01"
	StageCollected     = "02"
	StageInTransit     = "03"
	StageOutForDeliver = "04"
	StageDelivered     = "05"
)

// TreatStatus asks the carrier for the two-digit delivery stage of a booking.
// The endpoint is one of the unencrypted ones; fields go as plain query
// parameters. An answer without a stage tag means the carrier has no data
// yet and is returned as an empty string, not an error.
func (c *Client) TreatStatus(ctx context.Context, req StatusRequest) (string, error) {
	f := NewFields().
		Add("custNo", req.CustomerNo).
		Add("reqType", req.ReqType).
		Add("orderNo", req.OrderNo).
		Add("regDate", req.RegDate)

	body, err := c.Call(ctx, endpointStatus, f, false, "")
	if err != nil {
		return "", err
	}
	stage, _ := ExtractValue(body, "treatStusCd")
	return stage, nil
}
