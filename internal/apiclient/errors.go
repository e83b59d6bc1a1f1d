package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-authoring/internal/composer"
	"github.com/stemsi/exstem-authoring/internal/response"
)

// APIError is a non-2xx response that has no more specific mapping.
type APIError struct {
	Method    string
	Path      string
	Status    int
	Code      response.ErrCode
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Is makes server-side failures match composer.ErrNetwork: the request may
// succeed when sent again.
func (e *APIError) Is(target error) bool {
	return target == composer.ErrNetwork && e.Status >= http.StatusInternalServerError
}

// IsUnauthorized reports a missing, expired or rejected token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// mapError turns a decoded error response into the error callers branch on.
func mapError(method, path string, status int, env *envelope) error {
	var body response.ErrorBody
	if env != nil && env.Error != nil {
		body = *env.Error
	}

	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, composer.ErrNotFound)
	case status == http.StatusBadRequest && body.Code == response.ErrValidation:
		fields := body.Fields
		if len(fields) == 0 {
			fields = map[string]string{"detail": body.Message}
		}
		return &composer.ValidationError{Fields: fields}
	}

	apiErr := &APIError{
		Method:  method,
		Path:    path,
		Status:  status,
		Code:    body.Code,
		Message: body.Message,
	}
	if env != nil {
		apiErr.RequestID = env.Metadata.RequestID
	}
	return apiErr
}
