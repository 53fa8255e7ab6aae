package chat

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrSessionBusy      = errors.New("session has a request in flight")
	ErrRotationDeclined = errors.New("api key rotation declined")
	ErrNotUserMessage   = errors.New("message is not a user message")
	ErrEmptyInput       = errors.New("empty user input")
)

// ConfigurationError reports a missing credential or model. It is returned before the
// session is touched.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ErrConfiguration.Error()
	}
	return fmt.Sprintf("%s (%s): %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
