package endpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a missing or invalid configuration value. It is returned
	// when the part that needs the value is first built, never from NewContext.
	ErrConfiguration = errors.New("endpoint: invalid configuration")
	// ErrClosed is returned by every accessor after Close.
	ErrClosed = errors.New("endpoint: context closed")
	// ErrNilMessage is returned when sending or publishing a nil message.
	ErrNilMessage = errors.New("endpoint: message is nil")
	// ErrNotStarted is returned when stopping a receive endpoint that is not running.
	ErrNotStarted = errors.New("endpoint: receive endpoint not started")
	// ErrAlreadyStarted is returned when starting a running receive endpoint.
	ErrAlreadyStarted = errors.New("endpoint: receive endpoint already started")
)

func configurationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
