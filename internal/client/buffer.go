package client

import (
	"slices"
	"sync"
)

// Buffer is the local copy of a document's rows.
type Buffer struct {
	mu   sync.Mutex
	rows []string
}

// NewBuffer returns a buffer holding rows.
func NewBuffer(rows []string) *Buffer {
	return &Buffer{rows: slices.Clone(rows)}
}

// Rows returns a copy of the rows.
func (b *Buffer) Rows() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.rows)
}

// Len returns the number of rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

// Set stores text at row, growing the buffer with empty rows as needed.
func (b *Buffer) Set(row int, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grow(row + 1)
	b.rows[row] = text
}

// Replace substitutes row with lines.
func (b *Buffer) Replace(row int, lines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grow(row + 1)
	b.rows = slices.Concat(b.rows[:row], lines, b.rows[row+1:])
}

// Resize grows the buffer to n rows. It never shrinks.
func (b *Buffer) Resize(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.grow(n)
}

func (b *Buffer) grow(n int) {
	for len(b.rows) < n {
		b.rows = append(b.rows, "")
	}
}
