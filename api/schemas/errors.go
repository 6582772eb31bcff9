package schemas

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSuchElement is returned by drivers when a lookup matches nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrNoAlertOpen is returned by dialog operations when no dialog is showing.
	ErrNoAlertOpen = errors.New("no such alert")
	// ErrInvalidArgument marks errors caused by insufficient caller input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTimeout marks an expired poll loop.
	ErrTimeout = errors.New("timeout")
	// ErrUnsupported is returned for capabilities a driver does not provide.
	ErrUnsupported = errors.New("unsupported by driver")
)

// NotFoundError reports a selector that could not be resolved to any element.
type NotFoundError struct {
	// Selector is the fully qualified selector that was looked up.
	Selector string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil || errors.Is(e.Err, ErrNoSuchElement) {
		return fmt.Sprintf("unable to locate element [%s]", e.Selector)
	}
	return fmt.Sprintf("unable to locate element [%s]: %v", e.Selector, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is makes every NotFoundError match ErrNoSuchElement, even when the driver error was something else.
func (e *NotFoundError) Is(target error) bool { return target == ErrNoSuchElement }

// InvalidArgumentError reports a call that could not be resolved from the arguments supplied.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return e.Message }

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// NewInvalidArgument formats an InvalidArgumentError.
func NewInvalidArgument(format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// TimeoutError reports a wait that exceeded its deadline.
type TimeoutError struct {
	Message string
	// Elapsed is the wall-clock time spent polling.
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string { return e.Message }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
