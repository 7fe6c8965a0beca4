package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"

	"messaging-core/auth"
	"messaging-core/contract"
	"messaging-core/internal"
	"messaging-core/moderation"
	"messaging-core/observability"
	"messaging-core/presence"
	"messaging-core/repositories"
	"messaging-core/runtime"
	"messaging-core/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle and
// centralizes error reporting, so deferred cleanup always executes and the
// wiring stays testable outside the process entry point.
func run() error {
	// 1. Configuration & logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB) & Redis
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	// 3. Collaborators
	stats := observability.NewGatewayStats()
	messageStore := repositories.NewMessageStore(db, log)
	directory := repositories.NewConversationDirectory(db, log)
	presenceStore := presence.NewStore(rdb, log, config.PresenceTTL, config.TypingTTL)

	filter, err := buildFilter(config)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Core: authenticator, registry, dispatcher, lifecycle
	var sessionValidator contract.CredentialValidator
	if config.SessionFallback {
		sessionValidator = auth.NewSessionValidator(rdb)
	}
	authenticator := auth.NewAuthenticator(log,
		auth.NewTokenValidator([]byte(config.JWTSecret)), sessionValidator)

	registry := runtime.NewRegistry(log, stats)
	dispatcher := runtime.NewDispatcher(log, registry, messageStore, directory, presenceStore, filter, stats)
	lifecycle := runtime.NewLifecycle(log, authenticator, registry, dispatcher, presenceStore, stats)

	// 5. HTTP surface
	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewServer(log, lifecycle, config.WriteTimeout, config.IdleTimeout))
	if config.DebugEndpoint {
		mux.Handle("/debug/stats", internal.DebugHandler(log, stats))
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting messaging gateway", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for stop or error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownDeadline)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Forced shutdown", "error", err)
	}
	log.Info("Program stopped cleanly", "open_connections", registry.Count())

	return nil
}

// buildFilter loads the moderation word list when one is configured.
// Without a list the gateway runs with moderation disabled.
func buildFilter(config internal.Config) (*moderation.Filter, error) {
	if config.ModerationFile == "" {
		return nil, nil
	}
	file, err := os.Open(config.ModerationFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	words, err := moderation.LoadWords(file)
	if err != nil {
		return nil, err
	}

	mask := []rune(config.ModerationChar)
	if len(mask) != 1 {
		return nil, fmt.Errorf("MODERATION_CHARACTER must be a single character, got %q", config.ModerationChar)
	}
	return moderation.NewFilter(words, mask[0])
}
