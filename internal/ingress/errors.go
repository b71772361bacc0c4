package ingress

import (
	"errors"

	"golang.org/x/sys/unix"
)

var (
	ErrBind            = errors.New("ingress: bind failed")
	ErrConnectionReset = errors.New("ingress: connection reset by peer")
)

// IsResourceExhaustion reports whether err is the process (EMFILE) or
// system-wide (ENFILE) open file limit.
func IsResourceExhaustion(err error) bool {
	return errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE)
}
