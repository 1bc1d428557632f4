package messages

// ShipmentCommand is what the UI-facing surfaces put on the command topic.
// They never touch the shipment record directly; booking and cancellation
// go through here or through the REST surface.
type ShipmentCommand struct {
	CommandID string `json:"command_id"`
	Action    string `json:"action"` // "book" | "cancel"

	Book   *BookCommand   `json:"book,omitempty"`
	Cancel *CancelCommand `json:"cancel,omitempty"`
}

type BookCommand struct {
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
	Weight        int    `json:"weight,omitempty"`
	Volume        int    `json:"volume,omitempty"`
	InsuredAmount int    `json:"insured_amount,omitempty"`
}

type CancelCommand struct {
	OrderID     string `json:"order_id"`
	DeleteAfter bool   `json:"delete_after,omitempty"`
}
