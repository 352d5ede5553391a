package dto

import (
	"errors"
	"net/http"
	"testing"

	"github.com/maruel/ksid"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("StatusCode() = %d, want %d", err.StatusCode(), http.StatusNotFound)
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("Code() = %s, want %s", err.Code(), ErrorCodeNotFound)
		}
		if err.Error() != "resource not found" {
			t.Errorf("Error() = %q", err.Error())
		}
		if err.Details() == nil {
			t.Error("Details() = nil")
		}
	})
	t.Run("WithDetails initializes nil map", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed, message: "test"}).
			WithDetails(map[string]any{"key": "value"})
		if err.Details()["key"] != "value" {
			t.Error("WithDetails did not initialize the map")
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		orig := errors.New("original error")
		err := InternalWithError("wrapped error", orig)
		if !errors.Is(err, orig) {
			t.Error("errors.Is() = false")
		}
		if err.Error() != "wrapped error: original error" {
			t.Errorf("Error() = %q", err.Error())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("thing"), http.StatusNotFound, ErrorCodeNotFound},
		{"DocumentNotFound", DocumentNotFound("abc"), http.StatusNotFound, ErrorCodeDocumentNotFound},
		{"RowOutOfRange", RowOutOfRange(7), http.StatusBadRequest, ErrorCodeRowOutOfRange},
		{"ArchiveFailed", ArchiveFailed(errors.New("x")), http.StatusServiceUnavailable, ErrorCodeArchiveFailed},
		{"BadRequest", BadRequest("bad"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"MissingField", MissingField("text"), http.StatusBadRequest, ErrorCodeMissingField},
		{"InvalidFormat", InvalidFormat("row", "nope"), http.StatusBadRequest, ErrorCodeInvalidFormat},
		{"Unauthorized", Unauthorized("no token"), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"Internal", Internal("boom"), http.StatusInternalServerError, ErrorCodeInternal},
		{"RateLimitExceeded", RateLimitExceeded(3), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %s, want %s", tt.err.Code(), tt.code)
			}
			var ews ErrorWithStatus
			if !errors.As(error(tt.err), &ews) {
				t.Error("does not implement ErrorWithStatus")
			}
		})
	}
	if got := RowOutOfRange(7).Details()["row"]; got != 7 {
		t.Errorf("RowOutOfRange details row = %v", got)
	}
}

func TestPathValidation(t *testing.T) {
	valid := ksid.NewID().String()
	tests := []struct {
		name  string
		req   Validatable
		code  ErrorCode
		valid bool
	}{
		{"doc ok", &OpenDocumentRequest{DocumentPath{DocID: valid}}, "", true},
		{"doc missing", &OpenDocumentRequest{}, ErrorCodeMissingField, false},
		{"doc garbage", &OpenDocumentRequest{DocumentPath{DocID: "!!"}}, ErrorCodeInvalidFormat, false},
		{"row ok", &GetRowRequest{RowPath{DocumentPath: DocumentPath{DocID: valid}, Row: "3"}}, "", true},
		{"row missing", &GetRowRequest{RowPath{DocumentPath: DocumentPath{DocID: valid}}}, ErrorCodeMissingField, false},
		{"row negative", &LockRowRequest{RowPath{DocumentPath: DocumentPath{DocID: valid}, Row: "-1"}}, ErrorCodeInvalidFormat, false},
		{"row not a number", &UnlockRowRequest{RowPath{DocumentPath: DocumentPath{DocID: valid}, Row: "x"}}, ErrorCodeInvalidFormat, false},
		{"write without text", &WriteRowRequest{RowPath: RowPath{DocumentPath: DocumentPath{DocID: valid}, Row: "0"}}, ErrorCodeMissingField, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.valid {
				if err != nil {
					t.Fatalf("Validate() = %v", err)
				}
				return
			}
			var ews ErrorWithStatus
			if !errors.As(err, &ews) || ews.Code() != tt.code {
				t.Errorf("Validate() = %v, want code %s", err, tt.code)
			}
		})
	}

	t.Run("parsed values", func(t *testing.T) {
		text := ""
		r := &WriteRowRequest{RowPath: RowPath{DocumentPath: DocumentPath{DocID: valid}, Row: "12"}, Text: &text}
		if err := r.Validate(); err != nil {
			t.Fatal(err)
		}
		if r.ID().String() != valid || r.Index() != 12 {
			t.Errorf("ID() = %s, Index() = %d", r.ID(), r.Index())
		}
	})
}
