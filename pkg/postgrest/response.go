package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Error is a PostgREST error body, or a client side failure past the
// request boundary (Code is then empty).
type Error struct {
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// UnmarshalJSON accepts details and hint of any json type. Ambiguous embed
// errors, for one, send details as an array; it is kept as json text.
func (e *Error) UnmarshalJSON(b []byte) error {
	var raw struct {
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
		Hint    json.RawMessage `json:"hint"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Message = raw.Message
	e.Details = jsonText(raw.Details)
	e.Hint = jsonText(raw.Hint)
	e.Code = jsonText(raw.Code)
	return nil
}

func jsonText(b json.RawMessage) string {
	if len(b) == 0 || string(b) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	return string(b)
}

// Response is the result of one request. Exactly one of Data and Error is
// meaningful: Data holds the json body (null for HEAD, empty bodies and a
// MaybeSingle without match), Error whatever went wrong.
type Response struct {
	Data       json.RawMessage
	Error      *Error
	Count      *int64
	Status     int
	StatusText string
}

// Err returns Error as an error, or nil.
func (r *Response) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

// Decode unmarshals Data into v, or returns Error.
func (r *Response) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// As decodes the response data into a T.
func As[T any](r *Response) (T, error) {
	var v T
	err := r.Decode(&v)
	return v, err
}

var null = json.RawMessage("null")

type decodeOptions struct {
	head  bool
	text  bool
	shape resultShape
}

func newResponse(raw *RawResponse, opts decodeOptions) *Response {
	resp := &Response{
		Status:     raw.Status,
		StatusText: raw.StatusText,
		Count:      parseContentRange(raw.Header.Get("Content-Range")),
	}
	if resp.StatusText == "" {
		resp.StatusText = http.StatusText(raw.Status)
	}
	body := bytes.TrimSpace(raw.Body)

	if raw.Status < 200 || raw.Status > 299 {
		resp.Error = parseError(raw.Status, body)
		if resp.Error == nil {
			// 404 with an empty body: nothing to report
			resp.Status = http.StatusNoContent
			resp.StatusText = http.StatusText(http.StatusNoContent)
			resp.Data = null
			return resp
		}
		if opts.shape == shapeMaybeSingle && strings.Contains(resp.Error.Details, "0 rows") {
			resp.Error = nil
			resp.Data = null
			resp.Status = http.StatusOK
			resp.StatusText = http.StatusText(http.StatusOK)
		}
		return resp
	}

	switch {
	case opts.head || len(body) == 0:
		resp.Data = null
		return resp
	case opts.text:
		b, _ := json.Marshal(string(raw.Body))
		resp.Data = b
		return resp
	case !json.Valid(body):
		resp.Error = &Error{Message: "invalid json in response body"}
		return resp
	}
	resp.Data = json.RawMessage(body)

	if opts.shape == shapeMaybeSingle && body[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(body, &rows); err != nil {
			resp.Error = &Error{Message: err.Error()}
			resp.Data = nil
			return resp
		}
		switch len(rows) {
		case 0:
			resp.Data = null
		case 1:
			resp.Data = rows[0]
		default:
			resp.Data = nil
			resp.Count = nil
			resp.Status = http.StatusNotAcceptable
			resp.StatusText = http.StatusText(http.StatusNotAcceptable)
			resp.Error = &Error{
				Code:    "PGRST116",
				Message: "JSON object requested, multiple (or no) rows returned",
				Details: fmt.Sprintf("Results contain %d rows, application/vnd.pgrst.object+json requires 1 row", len(rows)),
			}
		}
	}
	return resp
}

// parseError decodes an error body. It returns nil for a 404 without body.
func parseError(status int, body []byte) *Error {
	if len(body) == 0 {
		if status == http.StatusNotFound {
			return nil
		}
		return &Error{Message: http.StatusText(status)}
	}
	var e Error
	if err := json.Unmarshal(body, &e); err != nil || (e.Message == "" && e.Code == "") {
		return &Error{Message: string(body)}
	}
	return &e
}

// parseContentRange returns the total of "0-9/42" or "*/42"; nil when the
// total is unknown ("0-9/*") or the header is missing.
func parseContentRange(v string) *int64 {
	_, total, ok := strings.Cut(v, "/")
	if !ok || total == "*" {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// transportFailure reports err as a FetchError, or as an AbortError when the
// caller's ctx was canceled or timed out. Client side timeouts are fetch
// errors.
func transportFailure(ctx context.Context, err error) *Response {
	name := "FetchError"
	if ctx.Err() != nil {
		name = "AbortError"
	}
	return &Response{
		Error: &Error{Message: name + ": " + err.Error()},
	}
}
