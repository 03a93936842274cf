package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/lochel/genealogy/database"
	"github.com/lochel/genealogy/handlers"
	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/realtime"
	"github.com/lochel/genealogy/repository"
	"github.com/lochel/genealogy/services"
	"github.com/lochel/genealogy/workers"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the diagram workers and the optional record watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func jwtSecret() ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	logging.L().Warn("serve: JWT_SECRET not set, generating a random secret; tokens will not survive a restart")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return secret, nil
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		return err
	}
	userRepo := repository.NewGormUserRepository(gormDB)

	secret, err := jwtSecret()
	if err != nil {
		return err
	}

	hub := realtime.NewHub()
	go hub.Run(ctx)

	logging.L().Infof("serve: starting diagram workers (workers: %d, queue size: %d)", cfg.NumRenderWorkers, cfg.RenderQueueSize)
	renderPool := workers.NewDiagramRenderer(a.generator, a.renderer, hub, cfg.RenderQueueSize, cfg.NumRenderWorkers)
	defer renderPool.Stop()

	if cfg.WatchRecords {
		watcher, err := workers.NewRecordWatcher(renderPool, hub, cfg.WatchDebounce)
		if err != nil {
			return err
		}
		if err := watcher.Start(cfg.RelativesDir); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	if report, err := services.Validate(a.relatives); err != nil {
		logging.L().Warnf("serve: startup consistency check failed: %v", err)
	} else if !report.OK() {
		logging.L().Warnf("serve: %d relatives loaded with %d consistency warnings, see /api/validate", report.Relatives, len(report.Warnings))
	} else {
		logging.L().Infof("serve: %d relatives loaded", report.Relatives)
	}

	relativeService := services.NewRelativeService(a.relatives, renderPool)
	api := &handlers.API{
		Users:       userRepo,
		Secret:      secret,
		Auth:        handlers.NewAuthHandler(userRepo, secret),
		Relatives:   handlers.NewRelativeHandler(relativeService, a.processor, cfg.MaxUploadBytes),
		Diagrams:    handlers.NewDiagramHandler(a.relatives, renderPool, a.processor.Diagrams()),
		Validate:    &handlers.ValidateHandler{Store: a.relatives},
		Contact:     &handlers.ContactHandler{DB: db},
		Admin:       handlers.NewAdminUserHandler(userRepo, db),
		Permissions: &handlers.PermissionHandler{},
		Export:      &handlers.ExportHandler{Dir: cfg.RelativesDir},
		Events:      hub.ServeWS,
		ImagesDir:   cfg.ImagesDir,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(db))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Route("/api", api.Mount)
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.L().Infof("serve: listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logging.L().Info("serve: shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
