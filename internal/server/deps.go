package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/db"
	"github.com/jjudge-oj/problemgen/internal/generator"
	"github.com/jjudge-oj/problemgen/internal/mq"
	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/services"
	"github.com/jjudge-oj/problemgen/internal/store"
	"go.uber.org/zap"
)

// ProblemStore is the full problem repository contract.
type ProblemStore interface {
	services.ProblemRepository
	pipeline.ProblemStore
	pipeline.StaleFailer
	Ping(ctx context.Context) error
}

// Stores holds the repositories of the configured driver.
type Stores struct {
	Problems  ProblemStore
	Testcases services.TestcaseRepository
	Users     services.UserRepository
	close     func(ctx context.Context) error
}

// Close releases the underlying connection.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects to the store selected by cfg.Store.Driver.
func OpenStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info("connected to postgres", zap.String("host", cfg.Database.Host), zap.String("database", cfg.Database.DBName))
		return &Stores{
			Problems:  store.NewProblemRepository(conn),
			Testcases: store.NewTestcaseRepository(conn),
			Users:     store.NewUserRepository(conn),
			close:     func(context.Context) error { return conn.Close() },
		}, nil
	case config.StoreDriverMongo:
		client, database, err := store.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		logger.Info("connected to mongo", zap.String("database", cfg.Mongo.Database))
		return &Stores{
			Problems:  store.NewMongoProblemRepository(database),
			Testcases: store.NewMongoTestcaseRepository(database),
			Users:     store.NewMongoUserRepository(database),
			close:     client.Disconnect,
		}, nil
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Stores{
			Problems:  store.NewMemoryProblemRepository(),
			Testcases: store.NewMemoryTestcaseRepository(),
			Users:     store.NewMemoryUserRepository(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewGenerator builds the Gemini-backed generator.
func NewGenerator(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*generator.Generator, error) {
	prompts, err := generator.NewPromptManager()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	client, err := generator.NewGeminiClient(ctx, cfg, &http.Client{})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	logger.Info("generator ready", zap.String("model", client.Model()))
	return generator.New(client, prompts, logger), nil
}

// NewPipeline builds the enrichment pipeline. In queue mode the returned
// backend must be closed by the caller; it is nil in local mode.
func NewPipeline(ctx context.Context, cfg config.Config, problems pipeline.ProblemStore, gen pipeline.Generator, logger *zap.Logger) (*pipeline.Pipeline, mq.Backend, error) {
	opts := pipeline.Options{TestcaseSource: cfg.Pipeline.TestcaseSource}

	var backend mq.Backend
	if cfg.Pipeline.Dispatch == config.DispatchQueue {
		var err error
		backend, err = mq.NewBackend(ctx, cfg.MQ)
		if err != nil {
			return nil, nil, fmt.Errorf("connect %s: %w", cfg.MQ.Backend, err)
		}
		opts.Publisher = pipeline.NewQueuePublisher(backend, cfg.Pipeline.Channel)
	}

	logger.Info("enrichment pipeline ready",
		zap.String("dispatch", cfg.Pipeline.Dispatch),
		zap.String("testcase_source", cfg.Pipeline.TestcaseSource),
	)
	return pipeline.New(problems, gen, logger, opts), backend, nil
}
