package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"client_service/internal/auth"
	clientsvc "client_service/internal/clients"
	"client_service/internal/config"
	clientshandler "client_service/internal/http_server/handlers/clients"
	"client_service/internal/http_server/handlers/clientfiles"
	"client_service/internal/http_server/handlers/login"
	"client_service/internal/http_server/handlers/logout"
	"client_service/internal/http_server/handlers/profile"
	"client_service/internal/http_server/handlers/refresh"
	"client_service/internal/http_server/handlers/register"
	"client_service/internal/http_server/handlers/share"
	"client_service/internal/middleware/authn"
	"client_service/internal/rabbitmq"
	"client_service/internal/storage/postgres"
	"client_service/internal/token"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting client service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	tokens := token.New(
		cfg.Tokens.Secret,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
		cfg.Tokens.ReadTokenTTL,
	)

	authService := auth.New(log, storage, storage, tokens, msgBroker, cfg.Share.FrontendURL)
	clientService := clientsvc.New(log, storage)

	router := setupRouter(log, cfg, tokens, authService, clientService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	tokens *token.Service,
	authService *auth.Auth,
	clientService *clientsvc.Service,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validator.New()

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users/register", register.New(log, validate, authService))
		r.Post("/users/login",
			login.New(log, validate, authService, cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL),
		)

		// Refresh tokens only carry authority on these two routes.
		r.Group(func(r chi.Router) {
			r.Use(authn.RefreshOnly(log, tokens, authService))

			r.Post("/auth/refresh", refresh.New(log, authService, cfg.Tokens.AccessTokenTTL))
			r.Post("/auth/logout", logout.New(log))
		})

		r.Group(func(r chi.Router) {
			r.Use(authn.AccessRead(log, tokens, authService))

			r.Patch("/users", profile.Update(log, validate, authService))
			r.Delete("/users", profile.Delete(log, authService))

			r.Route("/auth/clients", func(r chi.Router) {
				r.Post("/", clientshandler.Create(log, validate, clientService))
				r.Get("/", clientshandler.List(log, clientService))
				r.Get("/share", share.New(log, authService))
				r.Patch("/{id}", clientshandler.Update(log, validate, clientService))
				r.Delete("/{id}", clientshandler.Delete(log, clientService))

				r.Get("/files/export", clientfiles.Export(log, clientService))
				r.Post("/files/import", clientfiles.Import(log, clientService))
			})
		})
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
