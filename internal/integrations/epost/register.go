package epost

import (
	"context"
	"strconv"
)

// Register books a parcel pickup and returns the carrier-issued identifiers.
// Field order below follows the carrier's reference concatenation; do not
// reorder.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	f := NewFields().
		Add("custNo", req.CustomerNo).
		Add("orderNo", req.OrderNo).
		Add("reqType", req.ReqType).
		Add("payType", req.PayType).
		Add("senderNm", req.SenderName).
		Add("senderZip", req.SenderZip).
		Add("senderAddr", req.SenderAddr).
		Add("senderDetailAddr", req.SenderDetailAddr).
		Add("senderTel", req.SenderTel).
		Add("recevNm", req.RecvName).
		Add("recevZip", req.RecvZip).
		Add("recevAddr", req.RecvAddr).
		Add("recevDetailAddr", req.RecvDetailAddr).
		Add("recevTel", req.RecvTel).
		Add("goodsNm", req.GoodsName).
		AddNumeric("weight", strconv.Itoa(req.Weight)).
		AddNumeric("volume", strconv.Itoa(req.Volume)).
		AddFlag("insuredYn", req.InsuredYn)
	if req.InsuredYn == "Y" {
		f.AddNumeric("insuredAmt", strconv.Itoa(req.InsuredAmount))
	}

	body, err := c.Call(ctx, endpointRegister, f, true, req.TestYn)
	if err != nil {
		return RegisterResult{}, err
	}
	return parseRegisterResult(body), nil
}

func parseRegisterResult(body string) RegisterResult {
	var res RegisterResult
	res.ReqNo, _ = ExtractValue(body, "reqNo")
	res.ResNo, _ = ExtractValue(body, "resNo")
	res.RegiNo, _ = ExtractValue(body, "regiNo")
	res.RegiPoNm, _ = ExtractValue(body, "regiPoNm")
	res.ResDate, _ = ExtractValue(body, "resDate")
	res.VTelNo, _ = ExtractValue(body, "vTelNo")
	if p, ok := ExtractValue(body, "price"); ok {
		if n, err := strconv.Atoi(p); err == nil {
			res.Price = n
		}
	}
	return res
}
