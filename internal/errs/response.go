package errs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorResponse is the error body returned by the API. The message field is either
// a single string or a list of strings; both shapes are accepted.
type ErrorResponse struct {
	Message     *string
	MessageList []string
	Error       *string
	StatusCode  *int
}

// UnmarshalJSON decodes both message shapes. Fields with an unexpected type are left nil
// instead of failing the whole body.
func (r *ErrorResponse) UnmarshalJSON(b []byte) error {
	*r = ErrorResponse{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	if m, ok := raw["message"]; ok && string(m) != "null" {
		var single string
		var list []string
		switch {
		case json.Unmarshal(m, &single) == nil:
			r.Message = &single
		case json.Unmarshal(m, &list) == nil && list != nil:
			r.MessageList = list
		}
	}
	if e, ok := raw["error"]; ok {
		var s string
		if json.Unmarshal(e, &s) == nil {
			r.Error = &s
		}
	}
	if c, ok := raw["statusCode"]; ok {
		var n int
		if json.Unmarshal(c, &n) == nil {
			r.StatusCode = &n
		}
	}
	return nil
}

// MarshalJSON writes the message back in the shape it was received in.
func (r ErrorResponse) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	switch {
	case r.MessageList != nil:
		out["message"] = r.MessageList
	case r.Message != nil:
		out["message"] = *r.Message
	}
	if r.Error != nil {
		out["error"] = *r.Error
	}
	if r.StatusCode != nil {
		out["statusCode"] = *r.StatusCode
	}
	return json.Marshal(out)
}

// FormattedMessage renders the message for display; list entries are joined by newlines.
func (r ErrorResponse) FormattedMessage() string {
	switch {
	case len(r.MessageList) > 0:
		return strings.Join(r.MessageList, "\n")
	case r.Message != nil:
		return *r.Message
	case r.Error != nil:
		return *r.Error
	}
	return ""
}

// DecodeResponse never fails: an unrecognized body yields an empty record.
func DecodeResponse(body []byte) ErrorResponse {
	var r ErrorResponse
	_ = r.UnmarshalJSON(body)
	return r
}

// Classify maps an HTTP status to the failure taxonomy.
func Classify(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrAuthorizationExpired
	case status >= 400 && status < 500:
		return ErrValidation
	case status >= 500:
		return ErrServer
	}
	return ErrUnexpectedResponse
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	Body   ErrorResponse
}

func (e *APIError) Error() string {
	if msg := e.Body.FormattedMessage(); msg != "" {
		return msg
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Unwrap exposes the taxonomy sentinel so callers can use errors.Is.
func (e *APIError) Unwrap() error { return Classify(e.Status) }

// Message returns the text shown to the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Body.FormattedMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}
