package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/auth"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/capabilities"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/config"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/handler"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/handler/sse"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/middleware"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/repository/postgres"
	postgresChat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/repository/postgres/chat"
	serviceChat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat"
	anthropicProvider "github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/providers/anthropic"
	openrouterProvider "github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/providers/openrouter"
	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/service/chat/tools"

	domainchat "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/services/chat"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create repositories
	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	chatRepo := postgresChat.NewChatRepository(repoConfig)
	messageRepo := postgresChat.NewMessageRepository(repoConfig)
	runRepo := postgresChat.NewRunRepository(repoConfig)
	recipeRepo := postgres.NewRecipeRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Model capability registry
	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize capability registry: %v", err)
	}

	// Tool registry
	toolRegistry := tools.NewRegistry()
	tools.RegisterRecipeTools(toolRegistry, recipeRepo)

	// Model providers, keyed off configured API keys
	var providers []domainchat.ModelProvider
	if cfg.AnthropicAPIKey != "" {
		p, err := anthropicProvider.NewProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create Anthropic provider: %v", err)
		}
		providers = append(providers, p)
		logger.Info("provider registered", "provider", p.Name())
	}
	if cfg.OpenRouterAPIKey != "" {
		p, err := openrouterProvider.NewProvider(cfg.OpenRouterAPIKey)
		if err != nil {
			log.Fatalf("Failed to create OpenRouter provider: %v", err)
		}
		providers = append(providers, p)
		logger.Info("provider registered", "provider", p.Name())
	}
	if len(providers) == 0 {
		log.Fatal("No model provider configured: set ANTHROPIC_API_KEY or OPENROUTER_API_KEY")
	}

	// Run execution stack
	stepExecutor := serviceChat.NewStepExecutor(providers, toolRegistry, logger)
	loop := serviceChat.NewLoop(stepExecutor, toolRegistry, logger)
	runRegistry := serviceChat.NewRunRegistry(time.Minute, 5*time.Minute)
	go runRegistry.StartCleanup(ctx)

	runService := serviceChat.NewService(
		chatRepo,
		messageRepo,
		runRepo,
		txManager,
		capabilityRegistry,
		toolRegistry,
		loop,
		runRegistry,
		cfg,
		logger,
	)

	// Handlers
	chatHandler := handler.NewChatHandler(runService, logger)
	runHandler := handler.NewRunHandler(runService, sse.DefaultConfig(), logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", chatHandler.HealthCheck)

	// Chat routes
	mux.HandleFunc("POST /api/chats", chatHandler.CreateChat)
	mux.HandleFunc("GET /api/chats/{id}/messages", chatHandler.GetChatMessages)

	// Run routes
	mux.HandleFunc("POST /api/chats/{id}/runs", runHandler.StartRun) // SSE response
	mux.HandleFunc("GET /api/runs/{id}/stream", runHandler.StreamRun)

	// Build middleware chain
	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Auth -> Routes
	var root http.Handler = mux
	root = middleware.AuthMiddleware(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Run-Id"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
