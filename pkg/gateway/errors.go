package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/store"
)

// ErrTransport matches every error returned by Client: failed requests and
// non-2xx responses alike.
var ErrTransport = errors.New("transport error")

// TransportError describes one failed gateway call. Code is the HTTP status,
// or 0 when no response was received. Cause is the underlying network error,
// or store.ErrNotFound / store.ErrReadOnly for 404 and 403 responses.
type TransportError struct {
	Op      string
	Code    int
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	switch {
	case e.Code == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	case e.Message != "":
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Code, http.StatusText(e.Code), e.Message)
	default:
		return fmt.Sprintf("%s: %d %s", e.Op, e.Code, http.StatusText(e.Code))
	}
}

func (e *TransportError) Unwrap() error { return e.Cause }

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func statusCause(code int) error {
	switch code {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusForbidden:
		return store.ErrReadOnly
	}
	return nil
}
