package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/wanpark/access-server-go/internal/model"
)

var (
	// ErrCodeCollision means the generated code is already live for the same
	// lock and purpose. Nothing was written.
	ErrCodeCollision = errors.New("code already live for lock and purpose")
	// ErrNotFound is returned by row-locking operations when the row is gone.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner is returned when a conditional update matched the row but
	// not its owner.
	ErrNotOwner = errors.New("not owner")
)

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// credentialKey is the advisory lock key serialising issuance for one holder
// of one lock purpose.
func credentialKey(lockID string, purpose model.Purpose, issuedTo string) string {
	return strings.Join([]string{"credential", lockID, string(purpose), issuedTo}, "|")
}
