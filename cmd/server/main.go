// Package main is the entry point for the trainercal server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dtorcivia/trainercal/internal/config"
	tccrypto "github.com/dtorcivia/trainercal/internal/crypto"
	"github.com/dtorcivia/trainercal/internal/database"
	"github.com/dtorcivia/trainercal/internal/server"
	"github.com/dtorcivia/trainercal/internal/util"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "hash-token":
			if err := hashToken(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// hashToken prints the HMAC of an API token under the configured secret. With
// no argument it generates a new token and prints both.
func hashToken(args []string) error {
	cfg, err := config.LoadUnvalidated()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Auth.SecretKey == "" {
		return errors.New("TRAINERCAL_SECRET_KEY must be set to hash a token")
	}
	hasher, err := tccrypto.NewTokenHasher(cfg.Auth.SecretKey)
	if err != nil {
		return err
	}

	token := ""
	if len(args) > 0 {
		token = args[0]
	} else {
		if token, err = tccrypto.GenerateAPIToken(); err != nil {
			return err
		}
		fmt.Printf("token: %s\n", token)
	}
	fmt.Printf("TRAINERCAL_API_TOKEN_HASH=%s\n", hasher.Hash(token))
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefaultLogger(logger)

	logger.Info("Starting trainercal",
		"version", server.Version,
		"port", cfg.Server.Port,
		"google", cfg.Google.Enabled(),
		"outlook", cfg.Outlook.Enabled(),
	)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	logger.Info("Database initialized", "path", cfg.Database.Path)

	srv, err := server.New(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			"addr", httpServer.Addr,
			"base_url", cfg.Server.BaseURL,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.StartBackgroundWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start background workers: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}
