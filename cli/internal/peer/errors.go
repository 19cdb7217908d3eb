package peer

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected       = errors.New("session not connected")
	ErrSignalApplyFailed  = errors.New("signal apply failed")
	ErrTransportFailed    = errors.New("transport failed")
	ErrDuplicateSession   = errors.New("duplicate session")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrMisaddressed       = errors.New("envelope not addressed to local peer")
	ErrInvalidPeer        = errors.New("invalid peer id")
	ErrManagerClosed      = errors.New("manager closed")
)

// Error records the operation and peer an error belongs to.
type Error struct {
	Op      string
	Peer    PeerID
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Peer != "" && e.Details != "" {
		return fmt.Sprintf("%s %s: %v (%s)", e.Op, e.Peer, e.Err, e.Details)
	}
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, peer PeerID, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op string, peer PeerID, err error, details string) *Error {
	return &Error{Op: op, Peer: peer, Err: err, Details: details}
}
