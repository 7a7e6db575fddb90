// Package container provides dependency injection using Uber FX.
package container

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/cookwise/v1/internal/application/chat"
	"github.com/cookwise/v1/internal/application/planner"
	"github.com/cookwise/v1/internal/application/recommend"
	"github.com/cookwise/v1/internal/infrastructure/ai/ollama"
	"github.com/cookwise/v1/internal/infrastructure/cache"
	"github.com/cookwise/v1/internal/infrastructure/config"
	"github.com/cookwise/v1/internal/infrastructure/http/server"
	gormRepo "github.com/cookwise/v1/internal/infrastructure/persistence/gorm"
	"github.com/cookwise/v1/internal/infrastructure/persistence/postgres"
	"github.com/cookwise/v1/internal/infrastructure/persistence/sqlite"
	"github.com/cookwise/v1/internal/infrastructure/retrieval/chroma"
	"github.com/cookwise/v1/internal/ports/outbound"
	"github.com/cookwise/v1/pkg/logger"
)

// Module provides all dependency injection modules
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	DatabaseModule,
	CacheModule,
	CollaboratorModule,
	RepositoryModule,
	ServiceModule,
	HTTPModule,
	LifecycleModule,
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load("")
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// DatabaseModule provides the relational database, choosing the driver from
// configuration. SQLite serves development and tests, PostgreSQL serves
// deployments.
var DatabaseModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
		if cfg.Database.Driver == "postgres" {
			return postgres.SetupDatabase(cfg, log)
		}

		dbPath := ""
		if cfg.Database.Database != "" && cfg.Database.Database != ":memory:" {
			dbPath = cfg.Database.Database + ".db"
		}
		logLevel := gormLogger.Silent
		if cfg.App.Debug {
			logLevel = gormLogger.Info
		}

		db, err := sqlite.SetupDatabase(dbPath, logLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to setup SQLite database: %w", err)
		}

		log.Info("Connected to SQLite database",
			zap.String("path", dbPath),
			zap.Bool("in_memory", dbPath == ""))
		return db, nil
	},
)

// CacheModule provides the Redis-backed cache repository
var CacheModule = fx.Provide(
	cache.NewRedisClient,
	cache.NewRedisRepository,
)

// CollaboratorModule provides the external collaborators: the language
// model and the semantic recipe store.
var CollaboratorModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *ollama.Client {
		return ollama.NewClient(ollama.Config{
			BaseURL:     cfg.AI.BaseURL,
			Model:       cfg.AI.Model,
			Timeout:     cfg.AI.Timeout,
			Temperature: cfg.AI.Temperature,
		}, log)
	},
	func(client *ollama.Client) outbound.CompletionService { return client },

	func(cfg *config.Config, log *zap.Logger) *chroma.Client {
		return chroma.NewClient(chroma.Config{
			BaseURL:    cfg.Retrieval.BaseURL,
			Collection: cfg.Retrieval.Collection,
			Timeout:    cfg.Retrieval.Timeout,
		}, log)
	},
	func(client *chroma.Client) outbound.RetrievalService { return client },
)

// RepositoryModule provides persistence implementations. The conversation
// store is wrapped in the Redis history cache.
var RepositoryModule = fx.Provide(
	func(db *gorm.DB, cacheRepo outbound.CacheRepository, cfg *config.Config, log *zap.Logger) outbound.ConversationStore {
		store := gormRepo.NewConversationRepository(db)
		return cache.NewHistoryCache(store, cacheRepo, cfg.Redis.HistoryTTL, log)
	},

	gormRepo.NewRecipeRepository,
	func(repo *gormRepo.RecipeRepository) outbound.RecipeStore { return repo },
	func(repo *gormRepo.RecipeRepository) chat.RecipeSaver { return repo },
)

// ServiceModule provides the application services
var ServiceModule = fx.Provide(
	func(
		retrieval outbound.RetrievalService,
		store outbound.RecipeStore,
		llm outbound.CompletionService,
		cfg *config.Config,
		log *zap.Logger,
	) *recommend.Service {
		return recommend.NewService(retrieval, store, llm, recommend.Options{
			CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
			EnableReranking:     cfg.AI.EnableReranking,
		}, log)
	},

	func(recommender *recommend.Service, log *zap.Logger) *planner.Service {
		return planner.NewService(recommender, log)
	},

	func(
		store outbound.ConversationStore,
		recommender *recommend.Service,
		menuPlanner *planner.Service,
		saver chat.RecipeSaver,
		llm outbound.CompletionService,
		cfg *config.Config,
		log *zap.Logger,
	) *chat.Service {
		return chat.NewService(
			chat.NewMemory(store, cfg.Chat.HistoryLimit, log),
			chat.NewConstraintExtractor(llm, log),
			chat.NewContextAnalyzer(llm, cfg.Chat.TranscriptLimit, cfg.Chat.TurnTruncateLen, log),
			chat.NewIntentClassifier(llm, log),
			recommender,
			menuPlanner,
			saver,
			llm,
			chat.Options{
				DefaultResults: cfg.Chat.DefaultResults,
				MaxResults:     cfg.Chat.MaxResults,
			},
			log,
		)
	},
)

// HTTPModule provides the HTTP server
var HTTPModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger, chatService *chat.Service, ai *ollama.Client, retrieval *chroma.Client) *server.Server {
		checks := map[string]server.HealthChecker{
			"ollama":         ai,
			"semantic-store": retrieval,
		}
		return server.NewServer(cfg, log, chatService, checks)
	},
)

// LifecycleModule provides lifecycle hooks
var LifecycleModule = fx.Invoke(
	RegisterLifecycleHooks,
)

// RegisterLifecycleHooks registers application lifecycle hooks
func RegisterLifecycleHooks(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	srv *server.Server,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("Starting application",
				zap.String("name", cfg.App.Name),
				zap.String("version", cfg.App.Version),
				zap.String("environment", cfg.App.Environment))

			go func() {
				if err := srv.Start(); err != nil {
					log.Fatal("Failed to start HTTP server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down application")

			if err := srv.Shutdown(ctx); err != nil {
				log.Error("Failed to shutdown HTTP server", zap.Error(err))
			}

			sqlDB, err := db.DB()
			if err == nil {
				if err := sqlDB.Close(); err != nil {
					log.Error("Failed to close database connection", zap.Error(err))
				}
			}

			_ = log.Sync()
			return nil
		},
	})
}
