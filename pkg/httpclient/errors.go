package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

// BackendErrorResponse mirrors the `{"error": {...}}` envelope returned by
// the storefront backend on failures. It is used to parse structured error
// bodies from API calls.
type BackendErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an appropriate AppError. If the response body matches the standard
// error envelope, the code and message are preserved. Otherwise a generic
// error is returned with the status code and raw body.
//
// The caller should only invoke this when resp.StatusCode indicates an error
// (i.e., not 2xx). The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, endpoint string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", endpoint, resp.StatusCode, err)
	}

	var backend BackendErrorResponse
	if json.Unmarshal(bodyBytes, &backend) == nil && backend.Error != nil {
		return mapBackendError(resp.StatusCode, backend.Error.Code, backend.Error.Message, endpoint)
	}

	// Fallback: unstructured error body.
	return fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, string(bodyBytes))
}

// mapBackendError translates the backend's HTTP status code and error code
// into an AppError that preserves the error semantics.
func mapBackendError(status int, code, message, endpoint string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", endpoint, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(endpoint, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", endpoint, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
			Err:     apperrors.ErrInternal,
		}
	}
}
