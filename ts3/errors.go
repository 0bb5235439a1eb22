package ts3

import (
	"errors"
	"fmt"
)

const (
	AlreadyConnectedError = iota

	AuthenticationError

	CommandError

	ConnectionError

	ConnectionRefusedError

	DisconnectedError

	InvalidURIError

	MalformedLineError

	ProtocolError

	UnknownError
)

// NewError builds an error tagged with one of the package error codes. The
// optional message adds detail from the failing call site.
func NewError(errorCode int, message ...interface{}) error {
	var errorName string

	switch errorCode {
	case AlreadyConnectedError:
		errorName = "AlreadyConnectedError"
	case AuthenticationError:
		errorName = "AuthenticationError"
	case CommandError:
		errorName = "CommandError"
	case ConnectionError:
		errorName = "ConnectionError"
	case ConnectionRefusedError:
		errorName = "ConnectionRefusedError"
	case DisconnectedError:
		errorName = "DisconnectedError"
	case InvalidURIError:
		errorName = "InvalidURIError"
	case MalformedLineError:
		errorName = "MalformedLineError"
	case ProtocolError:
		errorName = "ProtocolError"
	default:
		errorName = "UnknownError"
	}

	if len(message) > 0 {
		if cause, isErr := message[0].(error); isErr {
			return fmt.Errorf("%s: %w", errorName, cause)
		}
		return fmt.Errorf("%s: %s", errorName, message[0])
	}

	return fmt.Errorf("%s", errorName)
}

// IsDisconnected reports whether err carries the DisconnectedError tag.
func IsDisconnected(err error) bool {
	if err == nil {
		return false
	}
	var queryErr *QueryError
	if errors.As(err, &queryErr) {
		return false
	}
	return hasErrorTag(err, "DisconnectedError")
}

func hasErrorTag(err error, tag string) bool {
	for err != nil {
		if msg := err.Error(); len(msg) >= len(tag) && msg[:len(tag)] == tag {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// QueryError is a server-rejected command: the trailing status line closed
// the reply with a non-zero id. The core Execute path never returns it; the
// convenience wrappers translate non-zero statuses into this type.
type QueryError struct {
	ID       int
	Msg      string
	ExtraMsg string
}

func (err *QueryError) Error() string {
	if err.ExtraMsg != "" {
		return fmt.Sprintf("query failed with id=%d msg=%q extra_msg=%q", err.ID, err.Msg, err.ExtraMsg)
	}
	return fmt.Sprintf("query failed with id=%d msg=%q", err.ID, err.Msg)
}
