package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rpattn/fieldbook/internal/auth"
	"github.com/rpattn/fieldbook/internal/config"
	"github.com/rpattn/fieldbook/internal/db"
	"github.com/rpattn/fieldbook/internal/export"
	"github.com/rpattn/fieldbook/internal/importer"
	"github.com/rpattn/fieldbook/internal/logging"
	"github.com/rpattn/fieldbook/internal/middleware"
	"github.com/rpattn/fieldbook/internal/repository"
	"github.com/rpattn/fieldbook/internal/schema"
	"github.com/rpattn/fieldbook/internal/workbook"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := db.RunMigrations(cfg.Database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	fieldDefRepo := repository.NewFieldDefinitionRepository(conn.Pool)
	entryRepo := repository.NewFieldEntryRepository(conn.Pool)
	jobRepo := repository.NewImportJobRepository(conn.Pool)

	registry := schema.NewRegistry(fieldDefRepo)
	layout := workbook.DefaultLayout()
	extractor := workbook.NewExtractor(layout)
	reconciler := importer.NewReconciler(layout.HeaderMarkers)
	importService := importer.NewService(registry, extractor, reconciler, entryRepo, jobRepo, conn, layout.Sheets)

	importHandler := importer.NewHTTPHandler(importService)
	schemaHandler := schema.NewHTTPHandler(registry)
	exportHandler := export.NewHTTPHandler(export.NewService(registry, entryRepo))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(auth.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/imports", importHandler.Stage)
		r.Post("/imports/commit", importHandler.Commit)
		r.Post("/imports/discard", importHandler.Discard)
		r.Get("/audits", importHandler.Audits)

		r.Get("/fields", schemaHandler.List)
		r.Post("/fields", schemaHandler.Upsert)
		r.Post("/fields/deactivate", schemaHandler.Deactivate)

		r.Get("/export", exportHandler.Download)
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      corsHandler.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server exited")
}
