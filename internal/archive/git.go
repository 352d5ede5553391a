// Commits archived documents into a git repository using go-git.

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/ksid"
)

// clientEmailSuffix marks commit authors that are editing clients.
const clientEmailSuffix = "@clients.coedit"

// Git writes each document to <id>.txt in a git work tree and commits it,
// authored by the client that closed the document.
type Git struct {
	dir          string
	defaultName  string
	defaultEmail string

	mu   sync.Mutex
	repo *gogit.Repository
}

// NewGit opens the repository at dir, initializing it if needed.
func NewGit(dir, defaultName, defaultEmail string) (*Git, error) {
	if defaultName == "" {
		defaultName = "coedit"
	}
	if defaultEmail == "" {
		defaultEmail = "coedit@localhost"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	repo, err := gogit.PlainOpen(dir)
	if err != nil {
		// Not a repo yet, initialize.
		repo, err = gogit.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = defaultName
		cfg.User.Email = defaultEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &Git{
		dir:          dir,
		defaultName:  defaultName,
		defaultEmail: defaultEmail,
		repo:         repo,
	}, nil
}

// Archive implements Archiver. Closing an unchanged document creates no
// commit.
func (g *Git) Archive(ctx context.Context, rec *Record) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// go-git does not take a context for local operations.
	if err := ctx.Err(); err != nil {
		return err
	}

	name := fileName(rec.ID)
	if err := os.WriteFile(filepath.Join(g.dir, name), []byte(rec.Text()), 0o644); err != nil { //nolint:gosec // G306: documents are shared content
		return wrapErr("git", rec.ID, err)
	}
	w, err := g.repo.Worktree()
	if err != nil {
		return wrapErr("git", rec.ID, fmt.Errorf("failed to get worktree: %w", err))
	}
	if _, err := w.Add(name); err != nil {
		return wrapErr("git", rec.ID, fmt.Errorf("failed to stage: %w", err))
	}
	status, err := w.Status()
	if err != nil {
		return wrapErr("git", rec.ID, fmt.Errorf("failed to get worktree status: %w", err))
	}
	if status.IsClean() {
		return nil
	}

	authorName := string(rec.Client)
	authorEmail := authorName + clientEmailSuffix
	if authorName == "" {
		authorName = g.defaultName
		authorEmail = g.defaultEmail
	}
	when := rec.ArchivedAt
	if when.IsZero() {
		when = time.Now()
	}
	msg := fmt.Sprintf("close %s (%d rows)", rec.ID, len(rec.Rows))
	_, err = w.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  when,
		},
		Committer: &object.Signature{
			Name:  g.defaultName,
			Email: g.defaultEmail,
			When:  when,
		},
	})
	if err != nil {
		return wrapErr("git", rec.ID, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// History implements Historian from the commits that touched the document.
func (g *Git) History(_ context.Context, id ksid.ID, n int) ([]*Revision, error) {
	if n <= 0 || n > 1000 {
		n = 1000
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	name := fileName(id)
	iter, err := g.repo.Log(&gogit.LogOptions{FileName: &name})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Empty repository.
			return nil, nil
		}
		return nil, wrapErr("git", id, fmt.Errorf("failed to read log: %w", err))
	}
	defer iter.Close()

	var out []*Revision
	for range n {
		c, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrapErr("git", id, fmt.Errorf("failed to iterate log: %w", err))
		}
		f, err := c.File(name)
		if err != nil {
			return nil, wrapErr("git", id, fmt.Errorf("failed to read %s at %s: %w", name, c.Hash, err))
		}
		text, err := f.Contents()
		if err != nil {
			return nil, wrapErr("git", id, fmt.Errorf("failed to read %s at %s: %w", name, c.Hash, err))
		}
		var client document.ClientID
		if strings.HasSuffix(c.Author.Email, clientEmailSuffix) {
			client = document.ClientID(c.Author.Name)
		}
		out = append(out, &Revision{
			Ref:    c.Hash.String(),
			Client: client,
			When:   c.Author.When,
			Rows:   strings.Split(text, "\n"),
		})
	}
	return out, nil
}

// Load implements Loader from the work tree.
func (g *Git) Load(ctx context.Context) ([]*Record, error) {
	f := File{dir: g.dir}
	return f.Load(ctx)
}
