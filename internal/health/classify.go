package health

import (
	"encoding/json"
	"errors"

	"github.com/aws/smithy-go"
)

// Failure is the uniform shape an error is reduced to at a probe boundary.
type Failure struct {
	StatusCode *int
	Message    string
	Content    any
}

// transportError is implemented by HTTP client errors that carry the
// failing response (see portal.ResponseError).
type transportError interface {
	ResponseStatus() int
	ResponseBody() []byte
}

// libraryError is implemented by SDK errors, e.g. smithy/aws response errors.
type libraryError interface {
	HTTPStatusCode() int
}

type genericStatusError interface {
	StatusCode() int
}

// Classify reduces err to a Failure. The status code is taken from the first
// source that provides one: the transport response, then the SDK response,
// then any error exposing StatusCode(). A nil error yields the zero Failure.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	f := Failure{Message: err.Error()}

	var te transportError
	if errors.As(err, &te) {
		code := te.ResponseStatus()
		f.StatusCode = &code
		f.Content = DecodeBody(te.ResponseBody())
		return f
	}

	var le libraryError
	if errors.As(err, &le) {
		code := le.HTTPStatusCode()
		f.StatusCode = &code
		var api smithy.APIError
		if errors.As(err, &api) {
			f.Content = map[string]any{
				"code":    api.ErrorCode(),
				"message": api.ErrorMessage(),
				"fault":   api.ErrorFault().String(),
			}
		}
		return f
	}

	var ge genericStatusError
	if errors.As(err, &ge) {
		code := ge.StatusCode()
		f.StatusCode = &code
	}
	return f
}

// DecodeBody returns the body as parsed JSON when it is valid JSON, otherwise
// as a string. Empty bodies yield nil.
func DecodeBody(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		var v any
		if err := json.Unmarshal(b, &v); err == nil {
			return v
		}
	}
	return string(b)
}

// RemoteMessage extracts the "message" field from a failing response body,
// falling back to the error text.
func RemoteMessage(err error) string {
	if err == nil {
		return ""
	}
	var te transportError
	if errors.As(err, &te) {
		if m, ok := DecodeBody(te.ResponseBody()).(map[string]any); ok {
			if s, ok := m["message"].(string); ok && s != "" {
				return s
			}
		}
	}
	var api smithy.APIError
	if errors.As(err, &api) && api.ErrorMessage() != "" {
		return api.ErrorMessage()
	}
	return err.Error()
}
