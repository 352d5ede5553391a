// Defines the row lock and the lock acquisition result.

package document

import (
	"errors"
	"fmt"
)

// ClientID is the opaque token identifying a remote editing session.
type ClientID string

// Lock ties a row to the client currently permitted to write it.
//
// A Lock is never mutated: releasing removes it from its slot.
type Lock struct {
	owner ClientID
}

// NewLock returns a lock owned by client.
func NewLock(client ClientID) *Lock {
	return &Lock{owner: client}
}

// Owner returns the client holding the lock.
func (l *Lock) Owner() ClientID {
	return l.owner
}

// OwnedBy returns true if client holds the lock.
func (l *Lock) OwnedBy(client ClientID) bool {
	return l != nil && l.owner == client
}

// String implements fmt.Stringer.
func (l *Lock) String() string {
	if l == nil {
		return "<free>"
	}
	return "locked by " + string(l.owner)
}

// ErrLockDenied is matched by errors returned from LockResult.Err.
var ErrLockDenied = errors.New("lock denied")

// ErrRowOutOfRange is returned when a row index is negative or past the
// addressable end of the document.
var ErrRowOutOfRange = errors.New("row out of range")

// LockDeniedError reports which client holds a row.
type LockDeniedError struct {
	Row    int
	Holder ClientID
}

func (e *LockDeniedError) Error() string {
	return fmt.Sprintf("row %d is locked by %s", e.Row, e.Holder)
}

// Is implements errors.Is.
func (e *LockDeniedError) Is(target error) bool {
	return target == ErrLockDenied
}

// LockResult is the outcome of a lock attempt: either Acquired, or Locked
// by another client.
type LockResult struct {
	Row    int
	Holder ClientID // Empty when acquired.
}

// Acquired returns true if the caller now holds the row.
func (r LockResult) Acquired() bool {
	return r.Holder == ""
}

// Err returns nil when acquired, a *LockDeniedError otherwise.
func (r LockResult) Err() error {
	if r.Acquired() {
		return nil
	}
	return &LockDeniedError{Row: r.Row, Holder: r.Holder}
}

func rowOutOfRange(op string, row, length int) error {
	return fmt.Errorf("%s row %d (document has %d rows): %w", op, row, length, ErrRowOutOfRange)
}
