package app

import (
	"context"

	"github.com/SHAIKYASIR/skillsync/pkg/config/banner"

	"github.com/valyala/fasthttp"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func (a *App) handler() fasthttp.RequestHandler {
	return a.server.Handler(a.gateway)
}

// startHTTP builds and starts the fasthttp server, returning a channel that
// delivers its terminal error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config
	const readBufferSize = 64 * 1024
	a.srvFast = &fasthttp.Server{
		Name:               "skillsync",
		Handler:            a.handler(),
		ReadBufferSize:     readBufferSize,
		MaxRequestBodySize: int(cfg.Server.MaxRequestBody.Int64()),
		ReduceMemoryUsage:  true,
		ReadTimeout:        cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:       cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:        cfg.Server.IdleTimeout.Duration(),
	}

	errCh := make(chan error, 1)
	go func() {
		// TLS is left to a fronting proxy
		errCh <- a.srvFast.ListenAndServe(a.eff.Addr)
	}()
	return errCh
}
