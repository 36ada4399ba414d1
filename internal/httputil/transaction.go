package httputil

import (
	"strconv"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTPStatusCodeTag is the name of the HTTP status code tag.
	HTTPStatusCodeTag = "http.response.status_code"
	// RPCMethodTag names the JSON-RPC method a transaction served.
	RPCMethodTag = "rpc.method"
)

// SetHTTPStatusCodeTag sets the status code tag for the current request to the top-level transaction.
func SetHTTPStatusCodeTag(e *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint == nil || hint.Response == nil {
		return e
	}
	if e.Tags == nil {
		e.Tags = make(map[string]string)
	}
	if _, exists := e.Tags[HTTPStatusCodeTag]; !exists {
		e.Tags[HTTPStatusCodeTag] = strconv.Itoa(hint.Response.StatusCode)
	}
	return e
}

// SetRPCMethodTag tags the transaction of the request hub with the method
// it dispatched.
func SetRPCMethodTag(hub *sentry.Hub, method string) {
	if hub == nil || method == "" {
		return
	}
	hub.Scope().SetTag(RPCMethodTag, method)
}
