// Appends document snapshots to a JSONL journal.

package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/maruel/ksid"
)

// journalVersion is written in the header line. Bump on incompatible change.
const journalVersion = 1

// maxJournalLine bounds a single snapshot line.
const maxJournalLine = 64 << 20

// journalHeader is the first line of a journal file.
type journalHeader struct {
	Version int             `json:"version"`
	Schema  json.RawMessage `json:"schema"`
}

// Journal appends every archived snapshot to a JSONL file and keeps the
// latest snapshot per document in memory.
//
// Line 1 is a header holding the JSON schema of Record; each following line
// is one Record.
type Journal struct {
	path string

	mu     sync.RWMutex
	latest map[ksid.ID]*Record
	n      int
}

// NewJournal opens or creates the journal at path and loads its content.
func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	j := &Journal{path: path, latest: make(map[ksid.ID]*Record)}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	found, err := j.scan(func(rec *Record) {
		j.latest[rec.ID] = rec
		j.n++
	})
	if err != nil {
		return err
	}
	if !found {
		return j.writeHeader()
	}
	return nil
}

// scan calls fn for every snapshot in the file, oldest first. It returns
// false when the file is missing or empty. Caller holds mu.
func (j *Journal) scan(fn func(*Record)) (bool, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open journal %s: %w", j.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var hdr journalHeader
			if err := json.Unmarshal(line, &hdr); err != nil || hdr.Version == 0 {
				return false, fmt.Errorf("invalid journal header in %s", j.path)
			}
			if hdr.Version > journalVersion {
				return false, fmt.Errorf("journal %s has version %d, newer than supported %d", j.path, hdr.Version, journalVersion)
			}
			continue
		}
		rec := &Record{}
		if err := json.Unmarshal(line, rec); err != nil {
			return false, fmt.Errorf("failed to unmarshal snapshot in %s: %w", j.path, err)
		}
		fn(rec)
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("failed to read journal %s: %w", j.path, err)
	}
	return !first, nil
}

// writeHeader creates the file with its schema header. Caller holds mu.
func (j *Journal) writeHeader() error {
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schema, err := json.Marshal(r.Reflect(&Record{}))
	if err != nil {
		return fmt.Errorf("failed to marshal journal schema: %w", err)
	}
	data, err := json.Marshal(journalHeader{Version: journalVersion, Schema: schema})
	if err != nil {
		return fmt.Errorf("failed to marshal journal header: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(j.path, data, 0o644); err != nil { //nolint:gosec // G306: journal is not secret
		return fmt.Errorf("failed to create journal %s: %w", j.path, err)
	}
	return nil
}

// Archive implements Archiver.
func (j *Journal) Archive(_ context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return wrapErr("journal", rec.ID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: journal is not secret
	if err != nil {
		return wrapErr("journal", rec.ID, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return wrapErr("journal", rec.ID, err)
	}

	c := *rec
	c.Rows = slices.Clone(rec.Rows)
	j.latest[rec.ID] = &c
	j.n++
	return nil
}

// Load implements Loader. Records are sorted by document ID.
func (j *Journal) Load(_ context.Context) ([]*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Record, 0, len(j.latest))
	for _, id := range slices.Sorted(maps.Keys(j.latest)) {
		c := *j.latest[id]
		c.Rows = slices.Clone(c.Rows)
		out = append(out, &c)
	}
	return out, nil
}

// History implements Historian by reading the journal back.
func (j *Journal) History(_ context.Context, id ksid.ID, n int) ([]*Revision, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []*Revision
	if _, err := j.scan(func(rec *Record) {
		if rec.ID == id {
			out = append(out, rec.revision())
		}
	}); err != nil {
		return nil, wrapErr("journal", id, err)
	}
	slices.Reverse(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Len returns the number of snapshots in the journal.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.n
}
