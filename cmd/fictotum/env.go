package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/Ramsey-B/fictotum/internal/platform/database"
	"github.com/Ramsey-B/fictotum/internal/platform/startup"
	"github.com/Ramsey-B/fictotum/internal/repositories/importrun"
	"github.com/Ramsey-B/fictotum/internal/repositories/mergelog"
	resolutionrepo "github.com/Ramsey-B/fictotum/internal/repositories/resolution"
	"github.com/Ramsey-B/fictotum/pkg/events"
	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/identity"
	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/kafka"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/redis"
	"github.com/Ramsey-B/fictotum/pkg/report"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

// envOptions selects which dependencies a command needs
type envOptions struct {
	Graph    bool
	Provider resolution.DecisionProvider
	// AutoResolve overrides MATCH_AUTO_RESOLVE when set
	AutoResolve *bool
}

// appEnv holds every client and service a command may use
type appEnv struct {
	startup *startup.Startup

	Graph     *graph.BoltStore
	DB        database.DB
	Redis     *redis.Client
	Producer  *kafka.Producer
	Decisions resolution.Store
	Emitter   *events.Emitter

	Matcher     *matching.Matcher
	Resolver    *resolution.Resolver
	Coordinator *importer.Coordinator
	Engine      *merging.Engine
	Reports     *report.Writer
}

// Close stops every started dependency in reverse order
func (env *appEnv) Close(ctx context.Context) {
	if env.startup == nil {
		return
	}
	if err := env.startup.Stop(ctx); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("Failed to stop dependencies cleanly")
	}
}

// initEnv starts the configured dependencies with retry and builds the services on top of them.
// Callers should defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	env := &appEnv{startup: startup.NewStartup(logger, cfg.StartupMaxAttempts)}

	if opts.Graph {
		env.startup.AddDependency(startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					URI:      cfg.GraphDBURI,
					Host:     cfg.GraphDBHost,
					Port:     cfg.GraphDBPort,
					Username: cfg.GraphDBUser,
					Password: cfg.GraphDBPassword,
					Database: cfg.GraphDBName,
					Dialect:  graph.Dialect(cfg.GraphDBDialect),
				}, logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				if err := client.EnsureIndexes(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				env.Graph = graph.NewBoltStore(client, logger)
				return nil
			},
			StopFunc: func(ctx context.Context) error { return env.Graph.Close(ctx) },
		})
	}

	if cfg.DatabaseEnabled {
		env.startup.AddDependency(startup.Func{
			Name: "postgres",
			StartFunc: func(ctx context.Context) error {
				db, err := database.Open(ctx, database.Config{
					DSN:             cfg.DatabaseDSN(),
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					MaxIdleConns:    cfg.DatabaseMaxIdleConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				}, logger)
				if err != nil {
					return err
				}
				if cfg.DatabaseMigrateOnStart {
					if err := newMigrationService(cfg.DatabaseMigrationVersion, cfg.DatabaseMigrationForce).Migrate(db); err != nil {
						_ = db.Close()
						return err
					}
				}
				env.DB = db
				return nil
			},
			StopFunc: func(context.Context) error { return env.DB.Close() },
		})
	}

	if cfg.RedisEnabled {
		env.startup.AddDependency(startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				if err != nil {
					return err
				}
				env.Redis = client
				return nil
			},
			StopFunc: func(context.Context) error { return env.Redis.Close() },
		})
	}

	if cfg.KafkaEnabled {
		env.startup.AddDependency(startup.Func{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				env.Producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaOutputTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFunc: func(context.Context) error { return env.Producer.Close() },
		})
	}

	if err := env.startup.Start(ctx); err != nil {
		env.Close(ctx)
		return nil, eris.Wrap(err, "start dependencies")
	}

	if err := env.build(ctx, opts); err != nil {
		env.Close(ctx)
		return nil, err
	}
	return env, nil
}

func (env *appEnv) build(ctx context.Context, opts envOptions) error {
	switch cfg.DecisionStore {
	case "redis":
		env.Decisions = resolution.NewRedisStore(env.Redis, cfg.RedisDecisionKey)
	case "postgres":
		env.Decisions = resolutionrepo.NewRepository(env.DB, logger)
	default:
		env.Decisions = resolution.NewFileStore(cfg.DecisionStorePath)
	}

	if env.Producer != nil {
		env.Emitter = events.NewEmitter(env.Producer, logger)
	}

	var err error
	env.Reports, err = newReportWriter(ctx)
	if err != nil {
		return err
	}

	if !opts.Graph {
		return nil
	}

	scoring := matching.DefaultScorerConfig()
	scoring.Mode = matching.SimilarityMode(cfg.MatchSimilarityMode)
	env.Matcher = matching.NewMatcher(logger, env.Graph, matching.NewScorer(scoring), matching.MatcherConfig{
		HighThreshold:      cfg.MatchHighThreshold,
		PotentialThreshold: cfg.MatchPotentialThreshold,
		BlockingLimit:      cfg.MatchBlockingLimit,
		MaxCandidates:      matching.DefaultMatcherConfig().MaxCandidates,
	})

	auto := cfg.MatchAutoResolve
	if opts.AutoResolve != nil {
		auto = *opts.AutoResolve
	}
	env.Resolver = resolution.NewResolver(logger, env.Decisions, opts.Provider, resolution.ResolverConfig{AutoResolve: auto})

	var history importer.HistoryRecorder = importer.NewFileHistory(cfg.ImportHistoryPath)
	var mergeLog merging.MergeLog
	if env.DB != nil {
		history = importrun.NewRepository(env.DB, logger)
		mergeLog = mergelog.NewRepository(env.DB, logger)
	}

	var validator identity.Validator
	if cfg.IdentityEnabled {
		var blocker *redis.Blocker
		if env.Redis != nil {
			blocker = redis.NewBlocker(env.Redis, cfg.RedisKeyPrefix)
		}
		identityCfg := identity.DefaultConfig()
		identityCfg.BaseURL = cfg.IdentityBaseURL
		identityCfg.UserAgent = cfg.IdentityUserAgent
		identityCfg.Timeout = cfg.IdentityTimeout
		identityCfg.MinInterval = cfg.IdentityMinInterval
		identityCfg.MaxAttempts = cfg.IdentityMaxAttempts
		identityCfg.LabelThreshold = cfg.IdentityLabelThreshold
		validator = identity.NewClient(identityCfg, blocker, logger)
	}

	env.Coordinator = importer.NewCoordinator(logger, env.Graph, env.Matcher, env.Resolver, validator, history, env.Emitter)
	env.Engine = merging.NewEngine(logger, env.Graph, mergeLog, env.Emitter, merging.Config{})
	return nil
}

// newReportWriter only loads AWS credentials when reports may go to S3
func newReportWriter(ctx context.Context) (*report.Writer, error) {
	if cfg.ReportS3Region == "" && cfg.ReportS3Endpoint == "" {
		return report.NewWriter(nil, logger), nil
	}
	client, err := report.NewS3Client(ctx, report.S3Config{
		Region:          cfg.ReportS3Region,
		Endpoint:        cfg.ReportS3Endpoint,
		AccessKeyID:     cfg.ReportS3AccessKeyID,
		SecretAccessKey: cfg.ReportS3SecretAccessKey,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init report s3 client")
	}
	return report.NewWriter(client, logger), nil
}
