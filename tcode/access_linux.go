//go:build linux

package tcode

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"strokesync/stroker"
)

// probeAccess checks that path exists and is read/write accessible to us.
func probeAccess(path string) error {
	err := unix.Access(path, unix.R_OK|unix.W_OK)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %s: %w", stroker.ErrPermissionDenied, path, err)
	default:
		return fmt.Errorf("%w: %s: %w", stroker.ErrUnavailable, path, err)
	}
}
