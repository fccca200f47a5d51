// Command chatd runs the campus chat client core behind a loopback HTTP API
// for the UI shell.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-campus-chat/internal/config"
	httpapi "github.com/tbourn/go-campus-chat/internal/http"
	"github.com/tbourn/go-campus-chat/internal/observability"
	"github.com/tbourn/go-campus-chat/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

// ShutdownTimeout bounds the graceful drain of open requests and streams.
const ShutdownTimeout = 10 * time.Second

//	@title			Campus Chat client API
//	@version		1.0
//	@description	Loopback API of the anonymous campus chat client, consumed by the UI shell.

// @BasePath	/api/v1
func main() {
	cfg := config.MustLoad()

	logger := sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	log.Logger = logger
	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	shutdownOTel, err := observability.SetupOTel(context.Background(), cfg.OTEL, ver)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start chat client")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, a.client, a.kv, cfg)

	// Request contexts derive from baseCtx; cancelling it ends open event
	// streams, which Shutdown would otherwise wait on.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", ver).Msg("chat client API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	cancelBase()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := a.Close(); err != nil {
		logger.Error().Err(err).Msg("closing storage")
	}
	if err := shutdownOTel(ctx); err != nil {
		logger.Error().Err(err).Msg("flushing traces")
	}
	logger.Info().Msg("stopped")
}
