package youtrack

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from YouTrack. For 400 responses Code and
// Description carry the server's error and error_description fields.
type APIError struct {
	Method      string
	Path        string
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	switch {
	case e.Code != "" && e.Description != "":
		msg += fmt.Sprintf(" (%s: %s)", e.Code, e.Description)
	case e.Code != "":
		msg += fmt.Sprintf(" (%s)", e.Code)
	case e.Description != "":
		msg += fmt.Sprintf(" (%s)", e.Description)
	default:
		if text := http.StatusText(e.StatusCode); text != "" {
			msg += " " + text
		}
	}
	return msg
}

// errorBody is the payload YouTrack sends with 4xx responses.
type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}
