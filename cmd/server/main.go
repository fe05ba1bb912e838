// Package main is the entry point for the UnifiedUI Chat Relay.
// @title UnifiedUI Chat Relay API
// @version 1.0
// @description Relays chat turns to a streaming inference service and keeps bounded per-user session history.

// @contact.name API Support
// @contact.url https://github.com/unifiedui/chat-relay
// @contact.email support@unifiedui.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey UserHeader
// @in header
// @name X-User-ID
// @description Caller identity injected by the authentication gateway
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/unifiedui/chat-relay/docs"
	"github.com/unifiedui/chat-relay/internal/api/handlers"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
	"github.com/unifiedui/chat-relay/internal/api/routes"
	"github.com/unifiedui/chat-relay/internal/config"
	"github.com/unifiedui/chat-relay/internal/core/cache"
	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/core/vault"
	rediscache "github.com/unifiedui/chat-relay/internal/infrastructure/cache/redis"
	"github.com/unifiedui/chat-relay/internal/infrastructure/docdb/mongodb"
	dotenvvault "github.com/unifiedui/chat-relay/internal/infrastructure/vault/dotenv"
	"github.com/unifiedui/chat-relay/internal/pkg/encryption"
	archiveservice "github.com/unifiedui/chat-relay/internal/services/archive"
	"github.com/unifiedui/chat-relay/internal/services/relay"
	"github.com/unifiedui/chat-relay/internal/services/session"
	"github.com/unifiedui/chat-relay/internal/services/upstream"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	// Initialize vault client using factory pattern
	vaultClient, err := createVault(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault")
	}
	defer vaultClient.Close()

	// Initialize cache client using factory pattern
	cacheClient, err := createCacheClient(cfg.Cache, cfg.Session.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	// The turn archive is optional
	var (
		docDBClient docdb.Client
		archive     docdb.TurnsCollection
		archiver    relay.Archiver
	)
	if cfg.DocDB.Enabled {
		client, err := createDocDBClient(ctx, cfg.DocDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize document db client")
		}
		defer client.Close(ctx)

		if err := client.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to ensure indexes")
		}
		docDBClient = client
		archive = client.Turns()

		queue, err := archiveservice.NewQueue(&archiveservice.Config{Turns: archive})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize archive queue")
		}
		queue.Start(archiveservice.DefaultWorkers)
		defer queue.Stop()
		archiver = queue
	}

	encryptor, err := createEncryptor(ctx, cfg.Vault, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize encryptor")
	}

	sessionService, err := session.NewService(&session.Config{
		CacheClient: cacheClient,
		Encryptor:   encryptor,
		TTL:         cfg.Session.TTL,
		MaxMessages: cfg.Session.MaxMessages,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session service")
	}

	upstreamClient, err := createUpstreamClient(ctx, cfg.Upstream, vaultClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upstream client")
	}

	relayService, err := relay.NewService(&relay.Config{
		Sessions:    sessionService,
		Upstream:    upstreamClient,
		Archive:     archiver,
		Metrics:     relay.MustNewMetrics(prometheus.DefaultRegisterer),
		TurnTimeout: cfg.Upstream.TurnTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize relay")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	router := setupRouter(cfg, cacheClient, docDBClient, archive, sessionService, relayService)

	// Streams can outlive any write timeout, so only the header read is bounded.
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	log.Logger = log.Logger.With().Str("service", "chat-relay").Logger()

	// log.Ctx falls back to the global logger outside a request.
	zerolog.DefaultContextLogger = &log.Logger
}

// createVault creates a vault based on the configuration.
func createVault(cfg config.VaultConfig) (vault.Vault, error) {
	switch vault.Type(cfg.Type) {
	case vault.TypeDotEnv:
		return dotenvvault.NewVault(), nil
	default:
		return nil, fmt.Errorf("unsupported vault type: %s", cfg.Type)
	}
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig, ttl time.Duration) (cache.Client, error) {
	switch cache.Type(cfg.Type) {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: ttl,
		})
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	switch docdb.Type(cfg.Type) {
	case docdb.TypeMongoDB:
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	default:
		return nil, fmt.Errorf("unsupported docdb type: %s", cfg.Type)
	}
}

// createEncryptor creates the session encryptor. Sessions are stored in
// plain JSON when no key is configured.
func createEncryptor(ctx context.Context, cfg config.VaultConfig, v vault.Vault) (encryption.Encryptor, error) {
	key, err := vault.Resolve(ctx, v, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	if key == "" {
		log.Warn().Msg("SESSION_ENCRYPTION_KEY not set, sessions are stored unencrypted")
		return encryption.NewNoOpEncryptor(), nil
	}

	return encryption.NewAESEncryptor(key)
}

// createUpstreamClient resolves the credentials and builds the inference client.
func createUpstreamClient(ctx context.Context, cfg config.UpstreamConfig, v vault.Vault) (upstream.Client, error) {
	apiKey, err := vault.Resolve(ctx, v, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	apiSecret, err := vault.Resolve(ctx, v, cfg.APISecret)
	if err != nil {
		return nil, err
	}

	return upstream.NewClient(&upstream.Config{
		URL:              cfg.URL,
		AppID:            cfg.AppID,
		APIKey:           apiKey,
		APISecret:        apiSecret,
		Domain:           cfg.Domain,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		SystemPrompt:     cfg.SystemPrompt,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
}

// setupRouter creates and configures the Gin router.
func setupRouter(
	cfg *config.Config,
	cacheClient cache.Client,
	docDBClient docdb.Client,
	archive docdb.TurnsCollection,
	sessionService session.Service,
	relayService relay.Service,
) *gin.Engine {
	router := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	authMw := middleware.NewAuthMiddleware(&middleware.HeaderAuthenticator{Header: cfg.Auth.UserHeader})

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.CORS.AllowOrigins
	if cfg.Auth.UserHeader != middleware.DefaultUserHeader {
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, cfg.Auth.UserHeader)
	}

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:   handlers.NewHealthHandler(cacheClient, docDBClient),
		ChatHandler:     handlers.NewChatHandler(relayService),
		SessionsHandler: handlers.NewSessionsHandler(sessionService, archive),
		AuthMiddleware:  authMw,
		EnableDocs:      true,
		EnableMetrics:   true,
	}

	routes.SetupWithMiddleware(router, routesCfg, loggingMw, errorMw, corsCfg)

	return router
}
