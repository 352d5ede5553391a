// Implements the row store, the lock table and the renumbering write.

package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

var errEmptyClient = errors.New("empty client id")

// Document is an ordered sequence of text rows with a parallel lock table.
//
// The zero value is not usable, use New.
type Document struct {
	mu    sync.Mutex
	rows  []string
	locks []*Lock // len(locks) == len(rows)
}

// Snapshot is a consistent copy of a document's rows and lock holders.
type Snapshot struct {
	Rows    []string
	Holders []ClientID // Empty string for a free row.
}

// New returns a document with one empty, unlocked row.
func New() *Document {
	return &Document{
		rows:  []string{""},
		locks: []*Lock{nil},
	}
}

// SetRows replaces the whole content. All rows end up unlocked.
func (d *Document) SetRows(rows []string) {
	if len(rows) == 0 {
		rows = []string{""}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = slices.Clone(rows)
	d.locks = make([]*Lock, len(rows))
}

// Write replaces the row at index row with the lines of text.
//
// row may equal the row count, meaning append. Leading and trailing blank
// lines of text are dropped; at least one row is always written. Rows and
// locks after row shift by the number of inserted lines minus one. The lock
// that was on row ends up on the last inserted line.
//
// Write does not check lock ownership.
func (d *Document) Write(row int, text string) error {
	newRows := SplitRows(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	if row < 0 || row > len(d.rows) {
		return rowOutOfRange("write", row, len(d.rows))
	}

	var tail []string
	if row < len(d.rows) {
		tail = d.rows[row+1:]
	}
	rows := make([]string, 0, row+len(newRows)+len(tail))
	rows = append(rows, d.rows[:row]...)
	rows = append(rows, newRows...)
	rows = append(rows, tail...)

	locks := make([]*Lock, 0, len(rows))
	locks = append(locks, d.locks[:row]...)
	if row < len(d.locks) {
		locks = append(locks, make([]*Lock, len(newRows)-1)...)
		locks = append(locks, d.locks[row:]...)
	} else {
		locks = append(locks, make([]*Lock, len(newRows))...)
	}

	d.rows = rows
	d.locks = locks
	return nil
}

// Lock acquires row for client.
//
// row may equal the row count, in which case a new empty last row is created
// and locked. Acquiring a row already held by client succeeds again.
func (d *Document) Lock(client ClientID, row int) (LockResult, error) {
	if client == "" {
		return LockResult{}, errEmptyClient
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if row < 0 || row > len(d.rows) {
		return LockResult{}, rowOutOfRange("lock", row, len(d.rows))
	}
	if row == len(d.rows) {
		d.rows = append(d.rows, "")
		d.locks = append(d.locks, nil)
	}
	switch l := d.locks[row]; {
	case l == nil:
		d.locks[row] = NewLock(client)
	case !l.OwnedBy(client):
		return LockResult{Row: row, Holder: l.Owner()}, nil
	}
	return LockResult{Row: row}, nil
}

// Unlock releases row held by client.
//
// Unlocking a free row is a no-op. Unlocking a row held by another client is
// a caller defect and panics.
func (d *Document) Unlock(client ClientID, row int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if row < 0 || row >= len(d.rows) {
		return rowOutOfRange("unlock", row, len(d.rows))
	}
	l := d.locks[row]
	if l == nil {
		return nil
	}
	if !l.OwnedBy(client) {
		panic(fmt.Sprintf("client %q unlocking row %d held by %q", client, row, l.Owner()))
	}
	d.locks[row] = nil
	return nil
}

// UnlockAll releases every row held by client and returns how many were
// released.
func (d *Document) UnlockAll(client ClientID) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for i, l := range d.locks {
		if l.OwnedBy(client) {
			d.locks[i] = nil
			n++
		}
	}
	return n
}

// IsLockedBy returns true only if row is locked and client holds it.
func (d *Document) IsLockedBy(client ClientID, row int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 0 || row >= len(d.locks) {
		return false
	}
	return d.locks[row].OwnedBy(client)
}

// Holder returns the client holding row, or the empty string if free.
func (d *Document) Holder(row int) (ClientID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 0 || row >= len(d.locks) {
		return "", rowOutOfRange("read lock of", row, len(d.rows))
	}
	if l := d.locks[row]; l != nil {
		return l.Owner(), nil
	}
	return "", nil
}

// Row returns the text of row.
func (d *Document) Row(row int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if row < 0 || row >= len(d.rows) {
		return "", rowOutOfRange("read", row, len(d.rows))
	}
	return d.rows[row], nil
}

// RowCount returns the number of rows, always at least one.
func (d *Document) RowCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rows)
}

// Rows returns a copy of all rows.
func (d *Document) Rows() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.rows)
}

// Snapshot returns rows and lock holders read under a single lock.
func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Rows:    slices.Clone(d.rows),
		Holders: make([]ClientID, len(d.locks)),
	}
	for i, l := range d.locks {
		if l != nil {
			s.Holders[i] = l.Owner()
		}
	}
	return s
}

// ChangedRows returns every row index not locked by client, in order.
//
// A row held by client is being composed by it and must not be refreshed
// from the server; every other row may have changed since it was last read.
func (d *Document) ChangedRows(client ClientID) []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, 0, len(d.rows))
	for i, l := range d.locks {
		if !l.OwnedBy(client) {
			out = append(out, i)
		}
	}
	return out
}

// SplitRows splits text into the rows Write stores, dropping leading and
// trailing blank lines. It always returns at least one row.
func SplitRows(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return []string{""}
	}
	return slices.Clone(lines[start:end])
}
