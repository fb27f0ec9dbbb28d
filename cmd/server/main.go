package main

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ignisadmin "github.com/cloudband/ignis-admin"
	"github.com/cloudband/ignis-admin/internal/handlers"
	"github.com/cloudband/ignis-admin/internal/logger"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/cloudband/ignis-admin/internal/telemetry"
	"go.uber.org/zap"
)

const (
	serviceName = "ignis-admin"
	version     = "0.1.0"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating logger: %w", err))
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("Server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config, zl *zap.Logger) error {
	warnUnverifiedLogin(cfg, zl)

	shutdownTracing, err := telemetry.Setup(context.Background(), cfg.Tracing, serviceName, version, zl)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			zl.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	boltDB, err := services.NewBoltDB(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if err := boltDB.Close(); err != nil {
			zl.Warn("Failed to close store", zap.Error(err))
		}
	}()

	backend, err := services.NewBackend(cfg.APIBaseURL, nil, zl)
	if err != nil {
		return err
	}
	types := services.NewDocumentTypes(backend, cfg.DocumentTypesTTL)

	m, err := handlers.NewMain(backend, boltDB, types, handlers.Config{
		SessionCookie:   cfg.SessionCookie,
		SecureCookie:    cfg.SecureCookie,
		JWTSecret:       cfg.JWTSecret,
		InquiryK:        cfg.Inquiry.K,
		ConversationTTL: cfg.ConversationTTL,
	}, zl)
	if err != nil {
		return err
	}

	mux, err := routes(m)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           m.WithSession(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			zl.Warn("Failed to shutdown sse server", zap.Error(err))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		zl.Info("Server starting",
			zap.String("addr", srv.Addr),
			zap.String("apiBaseURL", cfg.APIBaseURL))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		zl.Info("Start shutdown", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			zl.Error("Graceful shutdown failed", zap.Error(err))
			if err := srv.Close(); err != nil {
				zl.Error("Forcing server close", zap.Error(err))
			}
		}
	}
	return nil
}

// warnUnverifiedLogin logs that login claims, and with them the admin pages, are trusted without
// a signature check when no JWT secret is configured.
func warnUnverifiedLogin(cfg config, zl *zap.Logger) {
	if cfg.JWTSecret != "" {
		return
	}
	zl.Warn("jwtSecret is not set; login token claims are read unverified and admin pages " +
		"are shown based on them. The backend still authorizes every call.")
}

func routes(m handlers.Main) (*http.ServeMux, error) {
	staticFS, err := fs.Sub(ignisadmin.StaticFS, "static")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(staticFS))

	docs := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RequireSession(m.RequireAdmin(handlers.DocumentsAdminMessage, h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.StripPrefix("/static/", fileServer))

	mux.HandleFunc("GET /{$}", m.HandleHome)
	mux.HandleFunc("GET /login", m.HandleLoginPage)
	mux.HandleFunc("POST /login", m.HandleLogin)
	mux.HandleFunc("POST /logout", m.HandleLogout)

	mux.HandleFunc("POST /inquiries", m.RequireSession(m.HandleInquiries))
	mux.HandleFunc("POST /inquiries/types/{type}", m.RequireSession(m.HandleToggleType))
	mux.HandleFunc("GET /sse/conversation", m.RequireSession(m.HandleSSE))

	mux.HandleFunc("GET /documents", docs(m.HandleDocuments))
	mux.HandleFunc("GET /documents/new", docs(m.HandleNewDocument))
	mux.HandleFunc("POST /documents", docs(m.HandleCreateDocument))
	mux.HandleFunc("GET /documents/{id}", docs(m.HandleDocument))
	mux.HandleFunc("GET /documents/{id}/edit", docs(m.HandleEditDocument))
	mux.HandleFunc("POST /documents/{id}", docs(m.HandleUpdateDocument))
	mux.HandleFunc("POST /documents/{id}/delete", docs(m.HandleDeleteDocument))
	mux.HandleFunc("POST /documents/{id}/enqueue", docs(m.HandleEnqueueDocument))

	mux.HandleFunc("GET /settings", m.RequireSession(m.HandleSettings))
	mux.HandleFunc("POST /settings", m.RequireSession(m.HandleUpdateSettings))
	mux.HandleFunc("GET /environment",
		m.RequireSession(m.RequireAdmin(handlers.EnvironmentAdminMessage, m.HandleEnvironment)))

	mux.HandleFunc("POST /favorites/{service}", m.RequireSession(m.HandleToggleFavorite))
	mux.HandleFunc("GET /services", m.RequireSession(m.HandleServiceSearch))

	return mux, nil
}
