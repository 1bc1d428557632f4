package epost

import (
	"fmt"
	"strings"
)

// Carrier error codes with special handling.
const (
	// CodeInvalidCustomerNo is returned when the contract customer number
	// does not match the carrier's records.
	CodeInvalidCustomerNo = "ERR-211"
	// CodeNoReservation means the carrier has no matching reservation for a
	// cancel call. Cancellation treats it as a soft success: the booking
	// typically originated from the mock gateway and never existed upstream.
	CodeNoReservation = "ERR-305"
)

// InvalidParamsError reports every offending field of a request at once,
// before anything is sent upstream.
type InvalidParamsError struct {
	Fields []string
}

func (e *InvalidParamsError) Error() string {
	return "invalid parameters: " + strings.Join(e.Fields, ", ")
}

// TimeoutError: the carrier did not answer within the hard deadline.
// Safe to retry with backoff at the caller's discretion.
type TimeoutError struct {
	Endpoint string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("carrier call timed out: %s", e.Endpoint)
}

// NetworkError: transport-level failure before any HTTP status was seen.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("carrier network failure: %s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError: the carrier answered with a non-2xx status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("carrier http %d: %s", e.Status, snippet(e.Body))
}

// APIError is a business-level rejection parsed out of the response body.
// Generally not retryable; shown to the operator verbatim.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("carrier error %s: %s", e.Code, e.Message)
}

// InvalidCustomerNoError wraps the ERR-211 case with a remediation hint,
// since it is almost always a configuration problem on our side.
type InvalidCustomerNoError struct {
	APIError
}

func (e *InvalidCustomerNoError) Error() string {
	return e.APIError.Error() + " (check that epost.customer_no matches the carrier contract number)"
}

func (e *InvalidCustomerNoError) Unwrap() error { return &e.APIError }

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
