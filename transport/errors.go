package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNilDoer is returned by [NewPipeline] when no HTTP client is supplied.
	ErrNilDoer = errors.New("transport: nil http client")
	// ErrBodyTooLarge is wrapped by the TransportError returned for a 2xx
	// response whose body exceeds the pipeline's limit.
	ErrBodyTooLarge = errors.New("transport: response body too large")
)

// HTTPError reports a response with a non-2xx status.
type HTTPError struct {
	Status int
	Detail string
	Body   []byte
	Method string
	URL    string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
}

// TransportError reports a request that never produced a response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an [HTTPError].
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// Detail returns the server supplied detail message of err, if any.
func Detail(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Detail
	}
	return ""
}

func newHTTPError(req Request, url string, status int, body []byte) *HTTPError {
	return &HTTPError{
		Status: status,
		Detail: extractDetail(body),
		Body:   body,
		Method: req.Method,
		URL:    url,
	}
}

// extractDetail pulls a string "detail" field out of an error payload. FastAPI
// validation errors carry a list there; the first message is used.
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
		return items[0].Msg
	}
	return ""
}
