package api

import (
	"context"
	"net/http"
	"net/http/pprof"

	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/router"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

func (s *Server) version() string {
	if s.Version == "" {
		return "dev"
	}
	return s.Version
}

// Healthz reports liveness only.
func (s *Server) Healthz(ctx *fasthttp.RequestCtx) {
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

// Readyz fails until the store is open.
func (s *Server) Readyz(ctx *fasthttp.RequestCtx) {
	if s.Store == nil || !s.Store.DB().Ready() {
		router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "version": s.version()})
}

func (s *Server) AdminHealth(ctx *fasthttp.RequestCtx) {
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, map[string]string{"status": "ok", "service": "skillsync", "version": s.version()})
}

// AdminStats scans the store and reports row and index counts together
// with live query registry sizes.
func (s *Server) AdminStats(ctx *fasthttp.RequestCtx) {
	st, err := s.Store.Stats(context.Background())
	if err != nil {
		router.WriteError(ctx, err)
		return
	}
	out := map[string]any{
		"store":     st,
		"fanout":    s.Hub.Stats(),
		"queries":   query.Names(),
		"mutations": s.Mutations.Names(),
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, out)
}

// AdminRunMaintenance runs the maintenance job now and returns its report.
func (s *Server) AdminRunMaintenance(ctx *fasthttp.RequestCtx) {
	if s.RunMaintenance == nil {
		router.WriteJSONError(ctx, fasthttp.StatusServiceUnavailable, "maintenance is disabled")
		return
	}
	rep, err := s.RunMaintenance(context.Background())
	if err != nil {
		logger.Error("admin_maintenance_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusConflict, err.Error())
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, rep)
}

// wrapHTTPHandler adapts a net/http handler to fasthttp.
func wrapHTTPHandler(h http.Handler) fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(h)
}

func registerDebugRoutes(r *router.Router) {
	r.GET("/admin/debug/prometheus", wrapHTTPHandler(promhttp.Handler()))
	r.GET("/admin/debug/pprof/", wrapHTTPHandler(http.HandlerFunc(pprof.Index)))
	r.GET("/admin/debug/pprof/cmdline", wrapHTTPHandler(http.HandlerFunc(pprof.Cmdline)))
	r.GET("/admin/debug/pprof/profile", wrapHTTPHandler(http.HandlerFunc(pprof.Profile)))
	r.GET("/admin/debug/pprof/symbol", wrapHTTPHandler(http.HandlerFunc(pprof.Symbol)))
	r.GET("/admin/debug/pprof/trace", wrapHTTPHandler(http.HandlerFunc(pprof.Trace)))
}
