package auth

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// SyncPath is the websocket endpoint. Browsers cannot set headers on an
// upgrade request, so credentials may also arrive as query arguments there.
const SyncPath = "/v1/sync"

func header(ctx *fasthttp.RequestCtx, name string) string {
	return string(ctx.Request.Header.Peek(name))
}

func syncQuery(ctx *fasthttp.RequestCtx, name string) string {
	if string(ctx.Path()) != SyncPath {
		return ""
	}
	return string(ctx.QueryArgs().Peek(name))
}

// ExtractAPIKey reads "Authorization: Bearer <key>" or X-API-Key.
func ExtractAPIKey(ctx *fasthttp.RequestCtx) string {
	if auth := header(ctx, "Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	if k := header(ctx, "X-API-Key"); k != "" {
		return k
	}
	return syncQuery(ctx, "api_key")
}

func userIDFrom(ctx *fasthttp.RequestCtx) string {
	if v := header(ctx, "X-User-ID"); v != "" {
		return v
	}
	return syncQuery(ctx, "user_id")
}

func signatureFrom(ctx *fasthttp.RequestCtx) string {
	if v := header(ctx, "X-User-Signature"); v != "" {
		return v
	}
	return syncQuery(ctx, "signature")
}
