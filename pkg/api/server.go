// Package api is the HTTP and WebSocket surface over the mutation and query
// layers.
package api

import (
	"context"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/ingest"
	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/router"
	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/valyala/fasthttp"
)

// SyncOptions bounds each live-sync connection.
type SyncOptions struct {
	MaxFrameBytes   int64
	FramesPerSecond float64
	PingInterval    time.Duration
	PongTimeout     time.Duration
}

// Server holds the services the handlers call into.
type Server struct {
	Store     *store.Store
	Query     *query.Service
	Ingest    *ingest.Service
	Mutations *ingest.Dispatcher
	Hub       *fanout.Hub
	Sync      SyncOptions
	Version   string

	// RunMaintenance triggers one maintenance run. Nil when maintenance is
	// disabled.
	RunMaintenance func(ctx context.Context) (any, error)
}

func (s *Server) syncDefaults() SyncOptions {
	o := s.Sync
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = 256 * 1024
	}
	if o.FramesPerSecond <= 0 {
		o.FramesPerSecond = 40
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 20 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 3 * o.PingInterval
	}
	return o
}

// RegisterRoutes wires all API routes onto r.
func (s *Server) RegisterRoutes(r *router.Router) {
	r.GET("/healthz", s.Healthz)
	r.GET("/readyz", s.Readyz)

	// client auth endpoints
	r.POST("/v1/_sign", auth.Sign)

	// users
	r.POST("/v1/users", s.StoreUser)
	r.GET("/v1/users/me", s.CurrentUser)
	r.PUT("/v1/users/subscription", s.UpdateSubscription)
	r.GET(auth.BySubscriptionPrefix+"{subscriptionId}", s.UserBySubscription)
	r.GET("/v1/users/{ownerId}/projects", s.ListProjectsByOwner)

	// projects
	r.POST("/v1/projects", s.CreateProject)
	r.GET("/v1/projects", s.ListProjects)
	r.GET("/v1/projects/{id}", s.GetProject)
	r.PUT("/v1/projects/{id}/content", s.UpdateProjectContent)
	r.PUT("/v1/projects/{id}/status", s.UpdateProjectStatus)

	// project messages and activity feed
	r.POST("/v1/projects/{id}/messages", s.SendMessage)
	r.GET("/v1/projects/{id}/messages", s.ListMessages)
	r.POST("/v1/projects/{id}/activities", s.LogActivity)
	r.GET("/v1/projects/{id}/activities", s.ListActivities)

	// live sync
	r.GET(auth.SyncPath, s.SyncHandler)

	// admin
	r.GET("/admin/health", s.AdminHealth)
	r.GET("/admin/stats", s.AdminStats)
	r.POST("/admin/jobs/maintenance", s.AdminRunMaintenance)
	registerDebugRoutes(r)
}

// Handler builds the routed handler behind the auth gateway.
func (s *Server) Handler(gw *auth.Gateway) fasthttp.RequestHandler {
	r := router.New()
	s.RegisterRoutes(r)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	return gw.Wrap(r.Handler)
}
