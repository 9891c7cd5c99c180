// Provides the generic adapter between typed handler methods and http.Handler.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	apierrors "github.com/maruel/mdblog/internal/errors"
	"github.com/maruel/mdblog/internal/server/ratelimit"
	"github.com/maruel/mdblog/internal/server/reqctx"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// Wrap adapts fn to an http.Handler for endpoints that need no admin session.
//
// The JSON body is decoded into In, then fields tagged `path:"name"` and
// `query:"name"` are filled from the URL before Validate is called.
func Wrap[In any, PtrIn interface {
	*In
	Validatable
}, Out any](s *Server, fn func(context.Context, PtrIn) (*Out, error)) http.Handler {
	return serve[In, PtrIn](s, false, func(ctx context.Context, _ *client, in PtrIn) (*Out, error) {
		return fn(ctx, in)
	})
}

// WrapAuth is Wrap for endpoints that act on the caller's admin session.
func WrapAuth[In any, PtrIn interface {
	*In
	Validatable
}, Out any](s *Server, fn func(context.Context, *client, PtrIn) (*Out, error)) http.Handler {
	return serve[In, PtrIn](s, true, fn)
}

func serve[In any, PtrIn interface {
	*In
	Validatable
}, Out any](s *Server, auth bool, fn func(context.Context, *client, PtrIn) (*Out, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var c *client
		var authErr error
		if auth {
			if c, authErr = s.authenticate(r); authErr == nil {
				ctx = reqctx.WithSessionID(ctx, c.id)
			}
		}
		// Rejected requests count against the client too.
		var ok bool
		if w, ok = s.checkRateLimit(ctx, w, r); !ok {
			return
		}
		if authErr != nil {
			writeError(ctx, w, authErr)
			return
		}
		input := new(In)
		if !readAndDecodeBody(ctx, w, r, input, s.opts.MaxRequestBodyBytes) {
			return
		}
		populatePathParams(r, input)
		populateQueryParams(r, input)
		if err := PtrIn(input).Validate(); err != nil {
			writeError(ctx, w, err)
			return
		}
		output, err := fn(ctx, c, PtrIn(input))
		writeJSONResponse(ctx, w, output, err)
	})
}

// checkRateLimit applies the tier matching r. It returns the (possibly
// wrapped) writer and whether the request may proceed.
func (s *Server) checkRateLimit(ctx context.Context, w http.ResponseWriter, r *http.Request) (http.ResponseWriter, bool) {
	tier := s.limits.Match(r.Method, r.URL.Path)
	if tier == nil {
		return w, true
	}
	id := reqctx.ClientIP(ctx)
	if sid := reqctx.SessionID(ctx); tier.Scope == ratelimit.ScopeSession && sid != 0 {
		id = sid.String()
	}
	result := tier.Limiter.Allow(ratelimit.BuildKey(tier.Scope, id, tier.Name))
	w = ratelimit.NewResponseWriter(w, result)
	if !result.Allowed {
		slog.WarnContext(ctx, "Rate limited", "tier", tier.Name, "id", id)
		writeError(ctx, w, apierrors.RateLimited(int(result.RetryAfter.Seconds())))
		return w, false
	}
	return w, true
}

// readAndDecodeBody reads the size limited body and decodes it into input.
// It returns false after writing an error response.
func readAndDecodeBody[In any](ctx context.Context, w http.ResponseWriter, r *http.Request, input *In, limit int64) bool {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(ctx, w, apierrors.PayloadTooLarge(maxErr.Limit))
			return false
		}
		writeError(ctx, w, apierrors.Validation("failed to read request body").Wrap(err))
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(input); err != nil {
		writeError(ctx, w, apierrors.Validation("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// writeJSONResponse writes output, or err mapped to its status and code.
func writeJSONResponse[Out any](ctx context.Context, w http.ResponseWriter, output *Out, err error) {
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(output); err != nil {
		slog.ErrorContext(ctx, "Failed to encode response", "err", err)
	}
}

// writeError writes the standard error envelope. Errors that do not carry a
// status are reported as INTERNAL_ERROR.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	code := apierrors.ErrInternal
	message := "internal error"
	var details map[string]any
	var ews apierrors.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode, code, message = ews.StatusCode(), ews.Code(), ews.Error()
		if d := ews.Details(); len(d) != 0 {
			details = d
		}
	}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "status", statusCode, "code", code)
	} else {
		slog.DebugContext(ctx, "Request rejected", "err", err, "status", statusCode, "code", code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := apierrors.ErrorResponse{
		Error:   apierrors.ErrorDetails{Code: code, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "Failed to encode error response", "err", err)
	}
}

// populatePathParams fills string fields tagged `path:"name"`.
func populatePathParams(r *http.Request, input any) {
	forEachTagged(input, "path", func(name string, field reflect.Value) {
		if v := r.PathValue(name); v != "" {
			setField(field, v)
		}
	})
}

// populateQueryParams fills fields tagged `query:"name"`.
func populateQueryParams(r *http.Request, input any) {
	query := r.URL.Query()
	forEachTagged(input, "query", func(name string, field reflect.Value) {
		if v := query.Get(name); v != "" {
			setField(field, v)
		}
	})
}

func forEachTagged(input any, key string, fn func(name string, field reflect.Value)) {
	val := reflect.ValueOf(input)
	if val.Kind() != reflect.Pointer || val.Elem().Kind() != reflect.Struct {
		return
	}
	walkTagged(val.Elem(), key, fn)
}

// walkTagged descends into embedded structs.
func walkTagged(elem reflect.Value, key string, fn func(name string, field reflect.Value)) {
	typ := elem.Type()
	for i := range typ.NumField() {
		f := typ.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			walkTagged(elem.Field(i), key, fn)
			continue
		}
		if name := f.Tag.Get(key); name != "" {
			fn(name, elem.Field(i))
		}
	}
}

func setField(field reflect.Value, value string) {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		if n, err := strconv.Atoi(value); err == nil {
			field.SetInt(int64(n))
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	default:
		if field.CanAddr() {
			if u, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
				_ = u.UnmarshalText([]byte(value))
			}
		}
	}
}
