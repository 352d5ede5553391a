// Package archive stores the rows of a closed document.
//
// An [Archiver] is invoked when a client closes a document. Several backends
// exist and can be combined with [Multi]:
//   - [File] writes one plain text file per document.
//   - [Journal] appends snapshots to a JSONL journal with a schema header.
//   - [Git] commits one text file per document into a git repository.
//   - [Redis] stores the text and a bounded history list in Redis.
//
// Backends that implement [Loader] can return the latest snapshot of every
// document, which the server uses to restore documents on startup. Backends
// that implement [Historian] list the archived versions of a document.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/ksid"
	"golang.org/x/sync/errgroup"
)

// Record is one archived document snapshot.
type Record struct {
	ID         ksid.ID           `json:"id" jsonschema:"description=Document identifier"`
	Client     document.ClientID `json:"client" jsonschema:"description=Client that closed the document"`
	Rows       []string          `json:"rows" jsonschema:"description=Document rows in order"`
	ArchivedAt time.Time         `json:"archived_at" jsonschema:"description=When the snapshot was taken"`
}

// Text returns the rows joined with line breaks.
func (r *Record) Text() string {
	return strings.Join(r.Rows, "\n")
}

func (r *Record) revision() *Revision {
	return &Revision{Client: r.Client, When: r.ArchivedAt, Rows: slices.Clone(r.Rows)}
}

// Archiver durably stores a document snapshot.
type Archiver interface {
	Archive(ctx context.Context, rec *Record) error
}

// Loader returns the latest snapshot of every archived document.
type Loader interface {
	Load(ctx context.Context) ([]*Record, error)
}

// ErrNoHistory is returned when no configured backend keeps history.
var ErrNoHistory = errors.New("no archive backend keeps history")

// Revision is one archived version of a document.
type Revision struct {
	// Ref identifies the version in its backend, e.g. a commit hash. It may be
	// empty.
	Ref    string
	Client document.ClientID
	When   time.Time
	Rows   []string
}

// Historian lists the archived versions of a document, newest first. n <= 0
// returns every version kept.
type Historian interface {
	History(ctx context.Context, id ksid.ID, n int) ([]*Revision, error)
}

// Discard drops every snapshot.
type Discard struct{}

// Archive implements Archiver.
func (Discard) Archive(context.Context, *Record) error { return nil }

// Multi archives to every backend concurrently. The first error fails the
// whole archive operation.
type Multi struct {
	backends []Archiver
}

// NewMulti returns an archiver writing to all of backends.
func NewMulti(backends ...Archiver) *Multi {
	return &Multi{backends: slices.Clone(backends)}
}

// Archive implements Archiver.
func (m *Multi) Archive(ctx context.Context, rec *Record) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range m.backends {
		eg.Go(func() error {
			return b.Archive(ctx, rec)
		})
	}
	return eg.Wait()
}

// Load implements Loader using the first backend that can load.
func (m *Multi) Load(ctx context.Context) ([]*Record, error) {
	for _, b := range m.backends {
		if l, ok := b.(Loader); ok {
			return l.Load(ctx)
		}
	}
	return nil, nil
}

// History implements Historian using the first backend that keeps history.
func (m *Multi) History(ctx context.Context, id ksid.ID, n int) ([]*Revision, error) {
	for _, b := range m.backends {
		if h, ok := b.(Historian); ok {
			return h.History(ctx, id, n)
		}
	}
	return nil, ErrNoHistory
}

// Close closes every backend that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, b := range m.backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of backends.
func (m *Multi) Len() int {
	return len(m.backends)
}

// fileName returns the archived file name for a document.
func fileName(id ksid.ID) string {
	return id.String() + ".txt"
}

// parseFileName is the inverse of fileName.
func parseFileName(name string) (ksid.ID, bool) {
	s, ok := strings.CutSuffix(name, ".txt")
	if !ok {
		return 0, false
	}
	id, err := ksid.Parse(s)
	if err != nil || id.IsZero() {
		return 0, false
	}
	return id, true
}

func wrapErr(backend string, id ksid.ID, err error) error {
	return fmt.Errorf("%s archive of %s: %w", backend, id, err)
}
