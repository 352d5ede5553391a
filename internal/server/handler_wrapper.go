// Provides adapters turning typed handler functions into http.Handler.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maruel/coedit/internal/document"
	"github.com/maruel/coedit/internal/server/dto"
	"github.com/maruel/coedit/internal/server/handlers"
	"github.com/maruel/coedit/internal/server/ratelimit"
	"github.com/maruel/coedit/internal/server/reqctx"
)

var (
	errUnauthorized   = errors.New("missing authorization header")
	errInvalidAuthHdr = errors.New("invalid authorization header")
	errInvalidToken   = errors.New("invalid token")
	errInvalidClient  = errors.New("invalid client in token")
)

// addRequestMetadataToContext adds client IP and User-Agent to the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request) context.Context {
	ctx = reqctx.WithClientIP(ctx, reqctx.GetClientIP(r))
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	return ctx
}

// requestAttrs returns the request metadata stored in ctx as slog attributes.
func requestAttrs(ctx context.Context) []any {
	attrs := []any{"ip", reqctx.ClientIP(ctx)}
	if ua := reqctx.UserAgent(ctx); ua != "" {
		attrs = append(attrs, "ua", ua)
	}
	if c := reqctx.Client(ctx); c != "" {
		attrs = append(attrs, "client", c)
	}
	return attrs
}

// checkRateLimit checks rate limit and wraps the response writer if needed.
// Returns the (possibly wrapped) writer and whether the request should proceed.
func checkRateLimit(w http.ResponseWriter, tier *ratelimit.Tier, identifier string) (http.ResponseWriter, bool) {
	if tier == nil {
		return w, true
	}
	result := tier.Limiter.Allow(ratelimit.BuildKey(tier.Scope, identifier, tier.Name))
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		apiErr := dto.RateLimitExceeded(int(result.RetryAfter.Seconds()))
		writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
		return w, false
	}
	return w, true
}

// decodeRequest reads the body, binds path parameters and validates the
// request. Returns false if an error was written to the response.
func decodeRequest[In any, PtrIn interface {
	*In
	dto.Validatable
}](ctx context.Context, w http.ResponseWriter, r *http.Request, cfg *handlers.Config) (PtrIn, bool) {
	input := new(In)
	if !readAndDecodeBody(ctx, w, r, input, cfg) {
		return nil, false
	}
	populatePathParams(r, input)
	if err := PtrIn(input).Validate(); err != nil {
		handleValidationError(ctx, w, err)
		return nil, false
	}
	return PtrIn(input), true
}

// readAndDecodeBody reads the request body with size limit and decodes JSON into input.
// Returns false if an error occurred and was written to the response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, cfg *handlers.Config) bool {
	if cfg != nil && cfg.MaxRequestBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			apiErr := dto.PayloadTooLarge(maxBytesErr.Limit)
			writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), apiErr.Details())
			return false
		}
		slog.ErrorContext(ctx, "Failed to read request body", "err", err)
		writeBadRequestError(w, "Failed to read request body")
		return false
	}
	if len(body) > 0 {
		d := json.NewDecoder(bytes.NewReader(body))
		d.DisallowUnknownFields()
		if err := d.Decode(input); err != nil {
			slog.WarnContext(ctx, "Failed to decode request body", "err", err)
			writeBadRequestError(w, "Invalid request body")
			return false
		}
	}
	return true
}

// writeJSONResponse writes a JSON response or error response.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorCode := dto.ErrorCodeInternal
		var details map[string]any
		var ewsErr dto.ErrorWithStatus
		if errors.As(err, &ewsErr) {
			statusCode = ewsErr.StatusCode()
			errorCode = ewsErr.Code()
			details = ewsErr.Details()
		}
		attrs := append([]any{"err", err, "statusCode", statusCode, "code", errorCode}, requestAttrs(ctx)...)
		if statusCode >= 500 {
			slog.ErrorContext(ctx, "Handler error", attrs...)
		} else {
			slog.DebugContext(ctx, "Handler error", attrs...)
		}
		writeErrorResponseWithCode(w, statusCode, errorCode, err.Error(), details)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// Wrap wraps an unauthenticated handler function to work as an http.Handler.
// The function must have signature: func(context.Context, *In) (*Out, error)
// where In can be unmarshalled from JSON and Out is a struct.
// Path parameters are bound to struct fields tagged with `path:"name"`.
// *In must implement dto.Validatable.
func Wrap[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error), cfg *handlers.Config, limiters *ratelimit.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		if tier := limiters.MatchUnauth(r.Method, r.URL.Path); tier != nil {
			var ok bool
			if w, ok = checkRateLimit(w, tier, reqctx.GetClientIP(r)); !ok {
				return
			}
		}
		input, ok := decodeRequest[In, PtrIn](ctx, w, r, cfg)
		if !ok {
			return
		}
		output, err := fn(ctx, input)
		writeJSONResponse(ctx, w, output, err)
	})
}

// WrapAuth wraps a handler that needs the calling client.
// The function must have signature:
// func(context.Context, document.ClientID, *In) (*Out, error)
// The client comes from the bearer token.
func WrapAuth[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, document.ClientID, PtrIn) (*Out, error), cfg *handlers.Config, limiters *ratelimit.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := addRequestMetadataToContext(r.Context(), r)
		client, err := validateToken(r, cfg.JWTSecret)
		if err != nil {
			apiErr := dto.Unauthorized(err.Error())
			writeErrorResponseWithCode(w, apiErr.StatusCode(), apiErr.Code(), apiErr.Error(), nil)
			return
		}
		ctx = reqctx.WithClient(ctx, client)
		if tier := limiters.MatchAuth(r.Method, r.URL.Path); tier != nil {
			var ok bool
			if w, ok = checkRateLimit(w, tier, string(client)); !ok {
				return
			}
		}
		input, ok := decodeRequest[In, PtrIn](ctx, w, r, cfg)
		if !ok {
			return
		}
		output, err := fn(ctx, client, input)
		writeJSONResponse(ctx, w, output, err)
	})
}

// validateToken extracts the client from the bearer token.
func validateToken(r *http.Request, secret []byte) (document.ClientID, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errUnauthorized
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return "", errInvalidAuthHdr
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	if !strings.HasPrefix(claims.Subject, "C") || len(claims.Subject) < 2 {
		return "", errInvalidClient
	}
	return document.ClientID(claims.Subject), nil
}

// populatePathParams extracts path and query parameters from the request and
// populates string fields tagged with `path:"paramName"` or
// `query:"paramName"`, including fields of embedded structs.
func populatePathParams(r *http.Request, input any) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer {
		return
	}
	populateStruct(r, val.Elem())
}

func populateStruct(r *http.Request, elem reflect.Value) {
	if elem.Kind() != reflect.Struct {
		return
	}
	typ := elem.Type()
	for i := range typ.NumField() {
		field := typ.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			populateStruct(r, elem.Field(i))
			continue
		}
		if field.Type.Kind() != reflect.String {
			continue
		}
		if tag := field.Tag.Get("path"); tag != "" {
			if v := r.PathValue(tag); v != "" {
				elem.Field(i).SetString(v)
			}
		} else if tag := field.Tag.Get("query"); tag != "" {
			if v := r.URL.Query().Get(tag); v != "" {
				elem.Field(i).SetString(v)
			}
		}
	}
}

// handleValidationError handles a validation error from a request's Validate method.
func handleValidationError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusBadRequest
	errorCode := dto.ErrorCodeValidationFailed
	var details map[string]any
	var ewsErr dto.ErrorWithStatus
	if errors.As(err, &ewsErr) {
		statusCode = ewsErr.StatusCode()
		errorCode = ewsErr.Code()
		details = ewsErr.Details()
	}
	attrs := append([]any{"err", err, "statusCode", statusCode, "code", errorCode}, requestAttrs(ctx)...)
	slog.DebugContext(ctx, "Validation error", attrs...)
	writeErrorResponseWithCode(w, statusCode, errorCode, err.Error(), details)
}

// writeBadRequestError writes a 400 Bad Request error response as JSON.
func writeBadRequestError(w http.ResponseWriter, message string) {
	writeErrorResponseWithCode(w, http.StatusBadRequest, dto.ErrorCodeValidationFailed, message, nil)
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code dto.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if len(details) == 0 {
		details = nil
	}
	response := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: code, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode error response", "err", err)
	}
}
