package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/curiolabs/curio/internal/config"
	"github.com/curiolabs/curio/internal/handler"
	"github.com/curiolabs/curio/internal/service/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if !cfg.API.Enabled() {
		log.Fatal("CURIO_API_KEY is required: the proxy exists to keep the real key server-side")
	}

	tokens, err := token.Open(cfg.Proxy.TokenDBPath)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}
	defer tokens.Close()
	log.Printf("token store ready at %s", cfg.Proxy.TokenDBPath)

	if cfg.Proxy.AdminKey == "" {
		log.Println("warning: CURIO_ADMIN_KEY not set, token management endpoints are open")
	}

	router := handler.NewRouter(tokens, cfg.API.BaseURL, cfg.API.APIKey, cfg.Proxy.AdminKey)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Curio credential proxy listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
