package lsps2

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ChannelStateError signals a protocol-level problem: a client payment or
// request that cannot be satisfied given the JIT channel's current state.
// A rejected Buy request returns it after logging and enqueuing a BuyError
// response. State-machine failures are not answered on the wire: the
// service wraps them into an APIMisuseError before returning to the host.
type ChannelStateError struct {
	err *goerrors.Error
}

// newChannelStateError formats a ChannelStateError, capturing a stack
// trace back to whoever logs it.
func newChannelStateError(format string, args ...interface{}) *ChannelStateError {
	return &ChannelStateError{
		err: goerrors.Errorf(format, args...),
	}
}

// Error implements the error interface.
func (e *ChannelStateError) Error() string {
	return e.err.Error()
}

// APIMisuseError signals that the host called into the service with
// arguments that do not correspond to any tracked state: an unknown
// request ID, peer, or user channel ID. These are programmer errors on the
// host's side and are never sent on the wire.
type APIMisuseError struct {
	err *goerrors.Error
}

func newAPIMisuseError(format string, args ...interface{}) *APIMisuseError {
	return &APIMisuseError{
		err: goerrors.Errorf(format, args...),
	}
}

// Error implements the error interface.
func (e *APIMisuseError) Error() string {
	return e.err.Error()
}

// wrapAPIMisuse adapts an arbitrary error (such as a ChannelStateError
// surfaced while driving the state machine) into an APIMisuseError for
// return to the host.
func wrapAPIMisuse(err error) *APIMisuseError {
	return &APIMisuseError{
		err: goerrors.Errorf("%s", fmt.Sprint(err)),
	}
}
