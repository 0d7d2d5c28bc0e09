package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
)

var (
	// ErrSessionExpired is returned when a 401 could not be recovered by a
	// token refresh. The session has already been cleared when it surfaces.
	ErrSessionExpired  = errors.New("session expired")
	ErrServiceNotFound = errors.New("service not found")
	ErrMissingAccess   = errors.New("response missing access token")
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Detail)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// newError extracts a human message from a DRF-style error body: the detail
// field, then the first field error, then the status text.
func newError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: body, Detail: http.StatusText(status)}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return e
	}
	if raw, ok := doc["detail"]; ok {
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			e.Detail = s
			return e
		}
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var list []string
		if json.Unmarshal(doc[k], &list) == nil && len(list) > 0 {
			e.Detail = k + ": " + list[0]
			return e
		}
		var s string
		if json.Unmarshal(doc[k], &s) == nil && s != "" {
			e.Detail = k + ": " + s
			return e
		}
	}
	return e
}
