package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidData marks a schema violation: invalid UTF-8, an unknown
// enum discriminant, or any other structurally malformed message body.
// Fatal to the connection per spec.md §7.
var ErrInvalidData = errors.New("protocol: invalid data")

// UnsupportedError is returned by ReadFrame when a frame's (phase, id) pair
// has no registered decoder. The frame layer has already drained the
// frame's body by the time this is returned; the state machine should
// log it and keep reading, per spec.md §4.4 and §7.
type UnsupportedError struct {
	Phase Phase
	ID    int32
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("protocol: unsupported packet id 0x%02x in phase %s", e.ID, e.Phase)
}

// IsUnsupported reports whether err is an *UnsupportedError.
func IsUnsupported(err error) bool {
	var u *UnsupportedError
	return errors.As(err, &u)
}
