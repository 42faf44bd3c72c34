// Package bootstrap wires configuration into services, adapters and run modes.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"mailmind_server/adapter/out/graph"
	"mailmind_server/adapter/out/mongodb"
	"mailmind_server/adapter/out/persistence"
	"mailmind_server/adapter/out/provider/gmail"
	"mailmind_server/adapter/out/snapshot"
	"mailmind_server/config"
	"mailmind_server/core/agent/llm"
	"mailmind_server/core/domain"
	"mailmind_server/core/port/out"
	"mailmind_server/core/service/classify"
	"mailmind_server/core/service/email"
	"mailmind_server/core/service/evolution"
	"mailmind_server/core/service/execution"
	"mailmind_server/core/service/job"
	"mailmind_server/core/service/learning"
	"mailmind_server/core/service/reply"
	"mailmind_server/core/service/skill"
	"mailmind_server/infra/database"
	"mailmind_server/internal/stream"
	"mailmind_server/pkg/cache"
	"mailmind_server/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Dependencies struct {
	Config *config.Config
	Store  *database.SQL
	Redis  *redis.Client
	Mongo  *mongo.Client
	Neo4j  neo4j.DriverWithContext

	// Repositories
	SkillRepo *persistence.SkillAdapter
	EmailRepo *persistence.EmailAdapter
	ReplyRepo *persistence.ReplyAdapter
	JobRepo   *persistence.JobAdapter

	// Collaborators (nil when not configured)
	Snapshots out.SnapshotStore
	Graph     out.SkillGraph
	Cache     out.JSONCache
	Mail      out.MailProvider
	LLM       *llm.Client

	// Services
	SkillService *skill.Service
	EmailService *email.Service
	ReplyService *reply.Service
	JobService   *job.Service

	// Agents
	ExecutionAgent *execution.Agent
	EvolutionAgent *evolution.Agent
	LearningAgent  *learning.Agent
}

// NewDependencies connects every configured backend and builds the services.
// The returned cleanup closes connections in reverse order.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Relational store
	store, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	deps.Store = store
	cleanups = append(cleanups, store.Close)
	logger.Info("Database connected (driver: %s)", store.Driver)

	if cfg.AutoMigrate {
		if err := persistence.Migrate(ctx, store); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	deps.SkillRepo = persistence.NewSkillAdapter(store.DB)
	deps.EmailRepo = persistence.NewEmailAdapter(store.DB)
	deps.ReplyRepo = persistence.NewReplyAdapter(store.DB)
	deps.JobRepo = persistence.NewJobAdapter(store.DB)

	// Redis
	if cfg.RedisURL != "" {
		client, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = client
			deps.Cache = cache.NewRedisCache(client)
			cleanups = append(cleanups, func() { client.Close() })
			logger.Info("Redis connected")
		}
	}

	// MongoDB
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			if cfg.SnapshotBackend == "mongo" {
				cleanup()
				return nil, nil, fmt.Errorf("connect mongodb: %w", err)
			}
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.Mongo = client
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				client.Disconnect(ctx)
			})
		}
	}

	// Snapshot store
	switch cfg.SnapshotBackend {
	case "mongo":
		archive := mongodb.NewSnapshotArchive(deps.Mongo.Database(cfg.MongoDBName), mongodb.DefaultSnapshotRetention)
		if err := archive.EnsureIndexes(ctx); err != nil {
			logger.Warn("Snapshot archive indexes: %v", err)
		}
		deps.Snapshots = archive
		logger.Info("Skill snapshots stored in MongoDB (%s)", cfg.MongoDBName)
	default:
		deps.Snapshots = snapshot.NewFileStore(cfg.SnapshotPath)
		logger.Info("Skill snapshots stored in %s", cfg.SnapshotPath)
	}

	// Neo4j
	if cfg.Neo4jURL != "" {
		driver, err := graph.NewDriver(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("Neo4j connection failed: %v", err)
		} else {
			deps.Neo4j = driver
			cleanups = append(cleanups, func() { driver.Close(context.Background()) })

			skillGraph := graph.NewSkillGraph(driver, "")
			if err := skillGraph.EnsureIndexes(ctx); err != nil {
				logger.Warn("Skill graph constraints: %v", err)
			}
			deps.Graph = skillGraph
			logger.Info("Skill provenance graph enabled")
		}
	}

	// LLM
	if cfg.OpenAIAPIKey != "" {
		deps.LLM = llm.NewClient(llm.ClientConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.LLMModel,
			Timeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
		}, logger.Default().Zerolog())
		logger.Info("LLM client configured (model: %s)", cfg.LLMModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, agents run without an LLM")
	}

	// Gmail
	if cfg.GmailEnabled() {
		provider, err := gmail.NewProvider(ctx, gmail.Config{
			ClientID:     cfg.GmailClientID,
			ClientSecret: cfg.GmailClientSecret,
			RefreshToken: cfg.GmailRefreshToken,
			Query:        cfg.GmailQuery,
		}, logger.Default().Zerolog())
		if err != nil {
			logger.Warn("Gmail provider disabled: %v", err)
		} else {
			deps.Mail = provider
		}
	}

	deps.buildServices()
	return deps, cleanup, nil
}

func (d *Dependencies) buildServices() {
	cfg := d.Config
	zlog := logger.Default().Zerolog()

	d.SkillService = skill.NewService(d.SkillRepo, d.SkillRepo, d.Snapshots, d.Graph, zlog)

	classifier := classify.NewClassifier(d.llmFor(llm.ProfileClassifier), d.Cache, cfg.ClassifyTTL, zlog)
	d.EmailService = email.NewService(d.EmailRepo, classifier, d.Mail, zlog)
	d.ReplyService = reply.NewService(d.ReplyRepo, d.EmailRepo, d.Mail, zlog)

	composer := reply.NewComposer(d.llmFor(llm.ProfileExecution), cfg.CompanyLabel, zlog)
	d.ExecutionAgent = execution.NewAgent(d.EmailRepo, d.ReplyRepo, classifier, d.SkillService, composer, zlog)
	d.EvolutionAgent = evolution.NewAgent(d.ReplyRepo, d.EmailRepo, d.SkillService, d.llmFor(llm.ProfileEvolution), zlog)
	d.LearningAgent = learning.NewAgent(d.EmailRepo, d.SkillService, d.llmFor(llm.ProfileLearning), cfg.LearnEmailCount, zlog)

	d.JobService = job.NewService(d.JobRepo, cfg.JobTimeout, zlog)
	d.JobService.Register(domain.JobLearning, job.LearningHandler(d.LearningAgent))
	d.JobService.Register(domain.JobBatchExecution, job.BatchExecutionHandler(d.ExecutionAgent))
	d.JobService.Register(domain.JobEvolution, job.EvolutionHandler(d.EvolutionAgent))
	d.JobService.Register(domain.JobSnapshotExport, job.SnapshotExportHandler(d.SkillService))
	d.JobService.Register(domain.JobMailSync, job.MailSyncHandler(d.EmailService))

	// Jobs go through the Redis stream when available. Otherwise the
	// in-process worker pool installs itself as the queue in NewWorker.
	if d.Redis != nil {
		rs := stream.NewRedisStream(d.Redis, cfg.WorkerGroup, logger.Component("redis_stream"))
		d.JobService.UseQueue(stream.NewProducer(rs))
	}
}

// llmFor binds the shared client to an agent profile. It returns a nil
// interface when no LLM is configured so services take their fallback path.
func (d *Dependencies) llmFor(profile llm.Profile) out.LLMClient {
	if d.LLM == nil {
		return nil
	}
	return d.LLM.For(profile)
}
