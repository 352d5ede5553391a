// Defines the validation interface for requests and path parsing helpers.

package dto

import (
	"strconv"

	"github.com/maruel/ksid"
)

// Validatable is implemented by request types that can validate their fields.
// The Wrap functions in handler_wrapper.go use this interface as a type
// constraint to ensure all request types provide validation.
type Validatable interface {
	Validate() error
}

// DocumentPath binds the {docID} path parameter.
type DocumentPath struct {
	DocID string `path:"docID" json:"-"`

	id ksid.ID
}

// ID returns the parsed document ID. Only valid after Validate.
func (p *DocumentPath) ID() ksid.ID {
	return p.id
}

// Validate parses DocID.
func (p *DocumentPath) Validate() error {
	if p.DocID == "" {
		return MissingField("docID")
	}
	id, err := ksid.Parse(p.DocID)
	if err != nil || id.IsZero() {
		return InvalidFormat("docID", "not a document identifier")
	}
	p.id = id
	return nil
}

// RowPath binds the {docID} and {row} path parameters.
type RowPath struct {
	DocumentPath
	Row string `path:"row" json:"-"`

	row int
}

// Index returns the parsed row. Only valid after Validate.
func (p *RowPath) Index() int {
	return p.row
}

// Validate parses DocID and Row.
func (p *RowPath) Validate() error {
	if err := p.DocumentPath.Validate(); err != nil {
		return err
	}
	if p.Row == "" {
		return MissingField("row")
	}
	row, err := strconv.Atoi(p.Row)
	if err != nil || row < 0 {
		return InvalidFormat("row", "must be a non-negative integer")
	}
	p.row = row
	return nil
}
