package router

import (
	"encoding/json"

	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes a JSON response.
func WriteJSON(ctx *fasthttp.RequestCtx, data any) error {
	ctx.Response.Header.Set("Content-Type", "application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus writes a JSON response with status.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data any) {
	ctx.SetStatusCode(status)
	_ = WriteJSON(ctx, data)
}

// WriteJSONError writes a JSON error response.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteError maps a store error kind to its HTTP status and writes it with
// the kind as "code".
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status, code := StatusFor(err)
	if status >= fasthttp.StatusInternalServerError {
		logger.Error("request_failed", "path", string(ctx.Path()), "code", code, "error", err)
	}
	ctx.SetStatusCode(status)
	ctx.Response.Header.Set("Content-Type", "application/json")
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": err.Error(), "code": code})
}

// StatusFor returns the HTTP status and wire code for err.
func StatusFor(err error) (int, string) {
	switch kind := store.Kind(err); kind {
	case "validation":
		return fasthttp.StatusBadRequest, kind
	case "not_found":
		return fasthttp.StatusNotFound, kind
	case "unauthenticated":
		return fasthttp.StatusUnauthorized, kind
	case "storage":
		return fasthttp.StatusServiceUnavailable, kind
	default:
		return fasthttp.StatusServiceUnavailable, "storage"
	}
}
