package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientNetwork marks failures worth retrying on a later attempt.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrMalformedResponse marks an unparseable answer from a collaborator.
	ErrMalformedResponse = errors.New("malformed response")
)

// ServiceUnavailableError reports that a required collaborator could not be reached
// or refused the request. It is fatal for a run.
type ServiceUnavailableError struct {
	Service string
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Service)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error {
	return e.Err
}

// FilesystemError reports a failed document write or checkpoint save.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// Transient wraps err so that errors.Is(err, ErrTransientNetwork) holds.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientNetwork, err)
}

// Malformed wraps err so that errors.Is(err, ErrMalformedResponse) holds.
func Malformed(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrMalformedResponse, err)
}
