package gateway

import "errors"

var (
	// ErrInsufficientPrivilege means the bot lacks a permission or outranks nothing it tried to change
	ErrInsufficientPrivilege = errors.New("insufficient privilege")
	// ErrTargetNotFound means the guild, member, role or channel is gone
	ErrTargetNotFound = errors.New("target not found")
	// ErrDeliveryBlocked means the recipient does not accept direct messages
	ErrDeliveryBlocked = errors.New("delivery blocked")
	// ErrTransient covers every other platform failure
	ErrTransient = errors.New("transient gateway failure")
)

// OpError is a failed gateway call. It matches its Kind with errors.Is
// and unwraps to the platform error.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Fail builds an OpError
func Fail(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}
