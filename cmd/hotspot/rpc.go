package main

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"

	"github.com/getsentry/hotspot/internal/httputil"
)

// postRPC serves one JSON-RPC request per body.
func (e *environment) postRPC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s := sentry.StartSpan(ctx, "request.body")
	s.Description = "Read request body"
	body, ok := httputil.ReadBody(w, r, e.config.MaxRequestSize)
	s.Finish()
	if !ok {
		return
	}

	var method struct {
		Method string `json:"method"`
	}
	if err := gojson.Unmarshal(body, &method); err == nil {
		httputil.SetRPCMethodTag(sentry.GetHubFromContext(ctx), method.Method)
	}

	response := e.registry.HandleMessage(ctx, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
}

func (e *environment) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
