package loadwatchsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Description, e.StatusCode)
	}
	return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
}

// parseErrorResponse turns an error body into an *APIError. Bodies that are
// not JSON (e.g. a bare 404 from the mux) keep the status text as the code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
