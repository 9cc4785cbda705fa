// Package lock is the only package that talks to lock hardware or vendor
// lock APIs.
package lock

import (
	"context"
	"fmt"

	"github.com/wanpark/access-server-go/internal/model"
)

// Controller actuates a single lock. Implementations must be idempotent:
// actuating an already open lock is not an error.
type Controller interface {
	Actuate(ctx context.Context, lockID string, purpose model.Purpose) error
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(ctx context.Context, lockID string, purpose model.Purpose) error

func (f ControllerFunc) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	return f(ctx, lockID, purpose)
}

// HardwareError is returned when a lock could not be actuated.
type HardwareError struct {
	LockID string
	Driver string
	Err    error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("lock %s (%s): %v", e.LockID, e.Driver, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
