package epost

import "context"

// Carrier endpoint names under the API base URL.
const (
	endpointRegister = "regiParcel"
	endpointCancel   = "cancelParcel"
	endpointStatus   = "treatStus"
)

// Gateway is the carrier-facing surface the booking, cancellation and
// reconciliation services depend on. Client implements it against the real
// carrier; fake.Gateway fabricates responses for non-production use.
type Gateway interface {
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	CancelRegistration(ctx context.Context, req CancelRequest) error
	TreatStatus(ctx context.Context, req StatusRequest) (string, error)
}

// RegisterRequest carries everything the parcel-registration call needs,
// already normalized by the booking service.
type RegisterRequest struct {
	CustomerNo string
	OrderNo    string

	// ReqType: "1" pickup visit, "2" office drop-off.
	ReqType string
	// PayType: "1" sender prepaid, "2" receiver collect, "3" deferred.
	PayType string

	SenderName       string
	SenderZip        string
	SenderAddr       string
	SenderDetailAddr string
	SenderTel        string

	RecvName       string
	RecvZip        string
	RecvAddr       string
	RecvDetailAddr string
	RecvTel        string

	GoodsName     string
	Weight        int // kg
	Volume        int // cm, sum of three sides
	InsuredYn     string
	InsuredAmount int // won, only sent when InsuredYn is "Y"

	TestYn string
}

// RegisterResult is the parsed success payload of the registration call.
type RegisterResult struct {
	ReqNo    string // carrier request identifier
	ResNo    string // reservation/approval number
	RegiNo   string // tracking number for the pickup leg
	RegiPoNm string // originating post office name
	ResDate  string // YYYYMMDD registration date
	Price    int
	VTelNo   string // virtual safety number, optional
}

// CancelRequest replays booking-time identifiers and flags verbatim.
type CancelRequest struct {
	CustomerNo string
	ReqNo      string
	ResNo      string
	RegiNo     string
	ReqType    string
	PayType    string
	TestYn     string
}

// StatusRequest keys the structured status-inquiry call.
type StatusRequest struct {
	CustomerNo string
	ReqType    string
	OrderNo    string
	RegDate    string // YYYYMMDD from the original booking
}
