package messages

import "time"

// Notification is the wire shape of one Notification Bridge call.
// Fire-and-forget: nothing in the protocol core waits on its delivery.
type Notification struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	OrderID   string `json:"order_id"`

	SentAt time.Time `json:"sent_at"`
}
