package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/ksid"
)

// DefaultDebounce is how long a session waits after the last keystroke
// before writing the row.
const DefaultDebounce = time.Second

// ErrNotComposing is returned by Edit when the session does not hold the row.
var ErrNotComposing = errors.New("row is not locked by this session")

// Session edits one document on behalf of one client. The row being typed is
// locked; edits to it are written once typing pauses.
type Session struct {
	b        Backend
	id       ksid.ID
	buf      *Buffer
	debounce time.Duration

	mu      sync.Mutex
	row     int // -1 when not composing
	pending *string
	timer   *time.Timer
	closed  bool
}

// Open loads every row of document id and returns a session on it.
// debounce <= 0 selects DefaultDebounce.
func Open(ctx context.Context, b Backend, id ksid.ID, debounce time.Duration) (*Session, error) {
	n, err := b.RowCount(ctx, id)
	if err != nil {
		return nil, err
	}
	rows := make([]string, n)
	for i := range n {
		if rows[i], err = b.Row(ctx, id, i); err != nil {
			return nil, err
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Session{b: b, id: id, buf: NewBuffer(rows), debounce: debounce, row: -1}, nil
}

// ID returns the document identifier.
func (s *Session) ID() ksid.ID { return s.id }

// Buffer returns the local copy of the document.
func (s *Session) Buffer() *Buffer { return s.buf }

// Composing returns the row being typed or -1.
func (s *Session) Composing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row
}

// Typing is called when the cursor enters row. It leaves the previous row
// then locks row. It returns false when another client holds row.
func (s *Session) Typing(ctx context.Context, row int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.New("session closed")
	}
	if s.row == row {
		return true, nil
	}
	if err := s.leaveLocked(ctx); err != nil {
		return false, err
	}
	ok, err := s.b.Lock(ctx, s.id, row)
	if err != nil || !ok {
		return false, err
	}
	s.row = row
	s.buf.Resize(row + 1)
	return true, nil
}

// Edit records the new text of the row being typed and schedules a write.
func (s *Session) Edit(row int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.row != row {
		return fmt.Errorf("edit row %d: %w", row, ErrNotComposing)
	}
	s.buf.Set(row, text)
	s.pending = &text
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushLater)
	return nil
}

func (s *Session) flushLater() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		slog.WarnContext(ctx, "client: write failed", "doc", s.id, "err", err)
	}
}

// Flush writes the pending edit now, if any.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *Session) flushLocked(ctx context.Context) error {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending == nil || s.row < 0 {
		return nil
	}
	text := *s.pending
	s.pending = nil
	if err := s.b.Write(ctx, s.id, s.row, text); err != nil {
		return err
	}
	// The lock follows the last line written.
	lines := document.SplitRows(text)
	s.buf.Replace(s.row, lines)
	s.row += len(lines) - 1
	return nil
}

// LeaveRow writes the pending edit and unlocks the row being typed.
func (s *Session) LeaveRow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveLocked(ctx)
}

func (s *Session) leaveLocked(ctx context.Context) error {
	if s.row < 0 {
		return nil
	}
	if err := s.flushLocked(ctx); err != nil {
		return err
	}
	if _, err := s.b.Unlock(ctx, s.id, s.row); err != nil {
		return err
	}
	s.row = -1
	return nil
}

// follow updates the composing row after other clients inserted lines above
// it. held lists the rows this client holds, ascending.
func (s *Session) follow(held []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.row < 0 {
		return
	}
	for _, r := range held {
		if r == s.row {
			return
		}
	}
	// Locks only move down.
	for _, r := range held {
		if r > s.row {
			slog.Debug("client: composing row moved", "doc", s.id, "from", s.row, "to", r)
			s.row = r
			return
		}
	}
}

// applyRemote stores text fetched from the server into row. It returns false
// and leaves the buffer alone when row is being typed.
func (s *Session) applyRemote(row int, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row == s.row {
		return false
	}
	s.buf.Set(row, text)
	return true
}

// Close leaves the row being typed and closes the document, which archives
// it server side.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.leaveLocked(ctx)
	s.closed = true
	return errors.Join(err, s.b.Close(ctx, s.id))
}
