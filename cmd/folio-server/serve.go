package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ehr/folio/internal/domain/folio"
	"github.com/ehr/folio/internal/platform/auth"
	"github.com/ehr/folio/internal/platform/blobstore"
	"github.com/ehr/folio/internal/platform/db"
	"github.com/ehr/folio/internal/platform/middleware"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the folio API for the desktop shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.Close()

	e := newEcho(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("his", cfg.HISAPIBase).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

const stagedPrefix = "/api/v1/staged/"

func newEcho(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = folio.NewValidator()

	folioHandler := folio.NewHandler(a.svc)

	e.Use(middleware.Recovery(a.logger, folioHandler.AnnotateLog))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger, folioHandler.AnnotateLog))
	e.Use(middleware.SecurityHeaders(stagedPrefix))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", fmt.Sprintf("%dM", cfg.MaxUploadMB)))
	e.Use(middleware.RequestTimeout(2*cfg.HTTPTimeout, "/api/v1/folio/save", "/api/v1/documents"))
	e.Use(auth.OperatorMiddleware(auth.OperatorConfig{
		SigningKey:      []byte(cfg.AuthSigningKey),
		DefaultOperator: cfg.DefaultOperator,
		Skipper:         auth.AuthSkipper,
	}))

	e.GET("/health", db.HealthHandler(5*time.Second, a.probes()...))

	api := e.Group("/api/v1")
	blobstore.NewBlobHandler(a.staging).RegisterRoutes(api)
	folioHandler.RegisterRoutes(api)

	return e
}

// probes reports HIS reachability, staging occupancy and, when configured,
// the correlation database.
func (a *app) probes() []db.Probe {
	probes := []db.Probe{
		{
			Name: "his",
			Check: func(ctx context.Context) (interface{}, error) {
				// Any HTTP answer means the API is reachable.
				resp, err := a.his.Get(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"base": a.his.Base(), "status": resp.Status}, nil
			},
		},
		{
			Name: "staging",
			Check: func(context.Context) (interface{}, error) {
				return map[string]int{"staged": a.staging.Len()}, nil
			},
		},
	}
	if a.pool != nil {
		probes = append(probes, db.PoolProbe(a.pool))
	}
	return probes
}
