package instances

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/appkins-org/gceapi/pkg/client"
	"github.com/gophercloud/gophercloud/v2"
)

// NotFoundError reports that an instance, or a sub-resource of it, does
// not exist.
type NotFoundError struct {
	ID  string
	Err error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Instance %s could not be found", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// translateNotFound turns the not-found shapes of the backing APIs into a
// NotFoundError for instance id. Other errors are returned unchanged.
func translateNotFound(id string, err error) error {
	if err == nil {
		return nil
	}

	var keyErr *client.KeyError
	var indexErr *client.IndexError
	switch {
	case errors.Is(err, client.ErrNotFound),
		gophercloud.ResponseCodeIs(err, http.StatusNotFound),
		errors.As(err, &keyErr),
		errors.As(err, &indexErr):
		return &NotFoundError{ID: id, Err: err}
	}

	return err
}

// statusCode returns the HTTP status an error is rendered with.
func statusCode(err error) int {
	var notFound *NotFoundError
	var unexpected gophercloud.ErrUnexpectedResponseCode
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unexpected) && unexpected.Actual >= 400:
		return unexpected.Actual
	}
	return http.StatusInternalServerError
}

// reason returns the GCE error reason for an HTTP status.
func reason(status int) string {
	switch status {
	case http.StatusNotFound:
		return "notFound"
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusUnauthorized:
		return "required"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusConflict:
		return "conflict"
	}
	return "backendError"
}
