package auth

import (
	"net"
	"strings"

	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/router"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

// Gateway is the request authentication middleware. It owns the per-key
// limiter pool, so Close must be called on shutdown.
type Gateway struct {
	cfg      SecConfig
	limiters *limiterPool
}

func NewGateway(cfg SecConfig) *Gateway {
	return &Gateway{cfg: cfg, limiters: newLimiterPool(cfg)}
}

// Close stops the limiter cleanup loop.
func (g *Gateway) Close() {
	g.limiters.Shutdown()
}

// Wrap returns next guarded by CORS, IP whitelist, API key roles, rate
// limits and caller resolution.
func (g *Gateway) Wrap(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	cfg := g.cfg
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		// cors headers and handle options shortcut
		origin := header(ctx, "Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		// ip whitelist runs before everything except cors
		if len(cfg.IPWhitelist) > 0 {
			ip := clientIP(ctx)
			if !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", string(ctx.Path()))
				return
			}
		}

		if publicAllowedPath(ctx) {
			SetCaller(ctx, identity.Caller{Role: identity.RoleUnauth})
			next(ctx)
			return
		}

		role, key := validateAPIKey(ctx, cfg)
		if role == identity.RoleUnauth {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", string(ctx.Path()), "remote", ctx.RemoteAddr().String())
			return
		}

		path := string(ctx.Path())
		isAdminPath := strings.HasPrefix(path, "/admin")
		if role == identity.RoleFrontend && !frontendAllowed(ctx) {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
			logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", path)
			return
		}
		if role != identity.RoleAdmin && isAdminPath {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "backend and frontend api keys cannot access admin routes")
			logger.Warn("admin_access_attempt", "role", role.String(), "path", path, "remote", ctx.RemoteAddr().String())
			return
		}
		if role == identity.RoleAdmin && !isAdminPath {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api keys may only access /admin routes")
			logger.Warn("admin_route_violation", "path", path, "remote", ctx.RemoteAddr().String())
			return
		}

		if !g.limiters.Allow(key) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", path)
			return
		}

		caller, rerr := resolveCaller(ctx, role)
		if rerr != nil {
			router.WriteJSONError(ctx, rerr.Code, rerr.Message)
			return
		}
		SetCaller(ctx, caller)
		next(ctx)
	}
}

func clientIP(ctx *fasthttp.RequestCtx) string {
	host := ctx.RemoteAddr().String()
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func validateAPIKey(ctx *fasthttp.RequestCtx, cfg SecConfig) (identity.Role, string) {
	key := ExtractAPIKey(ctx)
	if key == "" {
		return identity.RoleUnauth, ""
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return identity.RoleAdmin, key
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return identity.RoleBackend, key
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return identity.RoleFrontend, key
	}
	return identity.RoleUnauth, key
}

// BySubscriptionPrefix is the backend-only lookup of a user by billing
// subscription id.
const BySubscriptionPrefix = "/v1/users/by-subscription/"

// frontendAllowed keeps browser keys on /v1 and away from the signing and
// billing endpoints.
func frontendAllowed(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	if !strings.HasPrefix(path, "/v1/") {
		return false
	}
	switch path {
	case "/v1/_sign", "/v1/users/subscription":
		return false
	}
	return !strings.HasPrefix(path, BySubscriptionPrefix)
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := string(ctx.Path())
	return (path == "/healthz" || path == "/readyz") && string(ctx.Method()) == fasthttp.MethodGet
}
