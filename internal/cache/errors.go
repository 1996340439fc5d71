// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package cache

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the backing Redis store could not be reached or
// timed out. The failed operation had no partial effect; the caller decides
// whether to retry the whole operation.
var ErrUnavailable = errors.New("location cache unavailable")

// UnavailableError wraps a transport-level failure with the operation that
// hit it. It matches ErrUnavailable under errors.Is and exposes the
// underlying error via errors.Unwrap.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports a match for ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// unavailable wraps err as an UnavailableError for op.
func unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

// IsUnavailable reports whether err indicates the cache could not be
// reached, as opposed to a malformed-record parse failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
