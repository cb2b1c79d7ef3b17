package sshconn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAuthentication means the credentials were rejected. It is not retried.
	ErrAuthentication = errors.New("ssh authentication failed")
	// ErrConnection means the host could not be reached or the handshake failed.
	ErrConnection = errors.New("ssh connection failed")
	// ErrCommandTimeout means a remote command or download exceeded its timeout.
	ErrCommandTimeout = errors.New("remote operation timed out")
)

// Error is returned by every Client operation.
type Error struct {
	Op   string
	Host string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classifyDialError maps a handshake failure onto the sentinel errors.
func classifyDialError(err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
