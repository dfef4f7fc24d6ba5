package form

import (
	"errors"
	"fmt"

	"github.com/ukydev/service-logbook/internal/db"
)

// ErrSubmitInFlight is returned when a submission is attempted while another
// one is still running; the submit control stays disabled until the first
// settles.
var ErrSubmitInFlight = errors.New("a submission is already in flight")

// EditWindowError refuses an edit of a record whose date is not today. It is
// a flow redirect, not a store failure: the caller should navigate to the
// vehicle's read-only history view.
type EditWindowError struct {
	VehicleNumber string
	Redirect      string
}

func (e *EditWindowError) Error() string {
	return fmt.Sprintf("entries for %s can only be edited on the day they were recorded", e.VehicleNumber)
}

// StoreErrorKind separates an access-rule rejection from a connectivity
// problem so the user message can tell them apart.
type StoreErrorKind int

const (
	StoreErrorConnection StoreErrorKind = iota
	StoreErrorPermission
)

// StoreError wraps a failed read or write against the backing store.
type StoreError struct {
	Op   string
	Kind StoreErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Kind == StoreErrorPermission {
		return fmt.Sprintf("%s: permission denied: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: store unreachable: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// classifyStoreError tags a store failure with the kind the user message
// branches on.
func classifyStoreError(op string, err error) *StoreError {
	kind := StoreErrorConnection
	if db.IsPermissionDenied(err) {
		kind = StoreErrorPermission
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}
