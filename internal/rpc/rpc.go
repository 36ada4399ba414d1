// Package rpc dispatches JSON-RPC 2.0 requests to registered handlers.
//
// Transports hand one encoded request to HandleMessage and write back the
// encoded response. Handler errors are mapped to JSON-RPC error codes from
// the sentinels they wrap.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/hotspot/internal/errorutil"
	"github.com/getsentry/hotspot/internal/samplesource"
)

const Version = "2.0"

const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32001
)

type (
	Request struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      gojson.RawMessage `json:"id,omitempty"`
		Method  string           `json:"method"`
		Params  gojson.RawMessage `json:"params,omitempty"`
	}

	Response struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      gojson.RawMessage `json:"id"`
		Result  interface{}       `json:"result,omitempty"`
		Error   *Error            `json:"error,omitempty"`
	}

	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}

	// Handler serves one method. params is nil when the request has none.
	Handler func(ctx context.Context, params gojson.RawMessage) (interface{}, error)

	// Registry maps method names to handlers. Registration happens before
	// serving; lookups are then read-only.
	Registry struct {
		handlers map[string]Handler
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Registering a method twice is an error.
func (r *Registry) Register(method string, h Handler) error {
	if method == "" || h == nil {
		return errors.New("rpc: method name and handler must be set")
	}
	if _, exists := r.handlers[method]; exists {
		return fmt.Errorf("rpc: method %q already registered", method)
	}
	r.handlers[method] = h
	return nil
}

// Methods returns the registered method names in lexical order.
func (r *Registry) Methods() []string {
	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Handle runs the handler of req and wraps its outcome in a response.
func (r *Registry) Handle(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: Version, ID: req.ID}
	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
		return resp
	}
	h, ok := r.handlers[req.Method]
	if !ok {
		resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	span := sentry.StartSpan(ctx, "rpc.handle")
	span.Description = req.Method
	result, err := h(span.Context(), req.Params)
	span.Finish()
	if err != nil {
		resp.Error = toError(ctx, req.Method, err)
		return resp
	}
	resp.Result = result
	return resp
}

// HandleMessage decodes one request, handles it and encodes the response.
func (r *Registry) HandleMessage(ctx context.Context, message []byte) []byte {
	var req Request
	var resp Response
	if err := gojson.Unmarshal(message, &req); err != nil {
		resp = Response{
			JSONRPC: Version,
			ID:      gojson.RawMessage("null"),
			Error:   &Error{Code: CodeParseError, Message: "parse error"},
		}
	} else {
		resp = r.Handle(ctx, req)
	}
	if resp.ID == nil {
		resp.ID = gojson.RawMessage("null")
	}
	b, err := gojson.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("can't encode response")
		b, _ = gojson.Marshal(Response{
			JSONRPC: Version,
			ID:      resp.ID,
			Error:   &Error{Code: CodeInternalError, Message: "can't encode response"},
		})
	}
	return b
}

// ErrorCode maps an error returned by a handler to its JSON-RPC code.
func ErrorCode(err error) int {
	var rpcErr *Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr.Code
	case errors.Is(err, errorutil.ErrInvalidRequest),
		errors.Is(err, samplesource.ErrUnknownSource),
		errors.Is(err, samplesource.ErrNoStacks):
		return CodeInvalidParams
	case errors.Is(err, errorutil.ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternalError
	}
}

func toError(ctx context.Context, method string, err error) *Error {
	code := ErrorCode(err)
	if code != CodeInternalError {
		log.Debug().Err(err).Str("method", method).Int("code", code).Msg("request rejected")
		return &Error{Code: code, Message: err.Error()}
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	log.Error().Err(err).Str("method", method).Msg("request failed")
	return &Error{Code: code, Message: "internal error"}
}
