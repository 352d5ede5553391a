package client

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// DefaultPollInterval is the refresh period of a Poller.
const DefaultPollInterval = time.Second

// Poller refreshes a session's buffer from the server on a fixed interval.
//
// Every row not locked by this client is fetched again; the row being typed
// is skipped so local keystrokes are not overwritten.
type Poller struct {
	s        *Session
	interval time.Duration
}

// NewPoller returns a poller for s. interval <= 0 selects
// DefaultPollInterval.
func NewPoller(s *Session, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{s: s, interval: interval}
}

// Run polls until ctx is canceled. Errors are logged and polling continues.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := p.Sync(ctx); err != nil && ctx.Err() == nil {
				slog.WarnContext(ctx, "client: sync failed", "doc", p.s.id, "err", err)
			}
		}
	}
}

// Sync performs one refresh and returns the rows updated.
func (p *Poller) Sync(ctx context.Context) ([]int, error) {
	b, id := p.s.b, p.s.id
	// Rows are never removed, so n may only undercount the rows the change
	// list describes. Rows past n are picked up by the next Sync.
	n, err := b.RowCount(ctx, id)
	if err != nil {
		return nil, err
	}
	changed, err := b.ChangedRows(ctx, id)
	if err != nil {
		return nil, err
	}
	p.s.follow(held(changed, n))
	p.s.buf.Resize(n)
	var updated []int
	for _, row := range changed {
		if row >= n || row == p.s.Composing() {
			continue
		}
		text, err := b.Row(ctx, id, row)
		if err != nil {
			return updated, err
		}
		// The row may have been locked while the fetch was in flight.
		if p.s.applyRemote(row, text) {
			updated = append(updated, row)
		}
	}
	return updated, nil
}

// held returns the rows in [0, n) absent from changed.
func held(changed []int, n int) []int {
	var out []int
	for i := range n {
		if _, found := slices.BinarySearch(changed, i); !found {
			out = append(out, i)
		}
	}
	return out
}
