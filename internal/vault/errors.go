package vault

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError reports a failed client-credential login against the vault.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("vault auth failed: status=%d body=%s", e.Status, e.Body)
}

// APIError reports any unexpected non-2xx vault response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vault %s %s failed: status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a vault 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
