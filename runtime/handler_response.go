package runtime

import (
	"encoding/json"
	"errors"
	"net/http"
)

// getErrorStatusCode returns the status code for the given error.
func getErrorStatusCode(err error) int {
	var validationErr *validationError
	if errors.As(err, &validationErr) {
		if validationErr.Type == validationTypeResponse {
			return http.StatusInternalServerError
		}
		return http.StatusUnprocessableEntity
	}

	for _, known := range wellKnownErrors {
		if errors.Is(err, known.err) {
			return known.status
		}
	}

	return http.StatusInternalServerError
}

// newErrorResponse creates a new error response.
func newErrorResponse(status int, err error) Response {
	type responseError struct {
		Message string   `json:"message"`
		Details []string `json:"details,omitempty"`
	}

	responseErr := responseError{
		Message: err.Error(),
	}

	var validationErr *validationError
	if errors.As(err, &validationErr) {
		responseErr.Details = validationErr.Details()
	}

	body, err := json.Marshal(struct {
		Error responseError `json:"error"`
	}{
		Error: responseErr,
	})
	if err != nil {
		return Response{StatusCode: http.StatusInternalServerError}
	}

	return newResponse(status, body)
}

// newResponse creates a new response.
func newResponse(status int, body []byte) Response {
	header := make(http.Header)
	header.Add("Content-Type", "application/json")

	return Response{
		StatusCode: status,
		Body:       body,
		Header:     header,
	}
}
