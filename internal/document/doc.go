// Package document implements a line-oriented text document with a
// per-row advisory lock table.
//
// # Overview
//
// A [Document] is an ordered sequence of rows plus a parallel sequence of
// optional [Lock] values. Both sequences always have the same length and at
// least one row.
//
// # Locking
//
// A lock is a single-owner claim on a row. [Document.Lock] is idempotent for
// the current holder and mutually exclusive across clients; denial is
// reported as a [LockResult] value rather than an error. [Document.Unlock] on
// a row held by another client is a caller defect and panics.
//
// # Renumbering
//
// [Document.Write] replaces one row with one or more rows. Locks on rows
// after the edited row shift with their rows, so a lock keeps pointing at the
// same logical line. The lock of the edited row follows the last inserted
// row, which is where the editing cursor sits after typing a line break.
//
// Write does not check lock ownership. Exclusivity is enforced only on the
// lock acquisition path.
//
// # Concurrency
//
// Each Document owns one mutex covering every read and mutation, so a
// renumbering write is never observed half-applied.
package document
