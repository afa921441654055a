// Package config loads process settings from .env, an optional fictotum.yaml and the environment
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string   `mapstructure:"app_name"`
	Port                          int      `mapstructure:"port"`
	LogLevel                      string   `mapstructure:"log_level"`
	PrettyLogs                    bool     `mapstructure:"pretty_logs"`
	HttpServerWriteTimeoutSeconds int      `mapstructure:"http_server_write_timeout_seconds"`
	HttpServerReadTimeoutSeconds  int      `mapstructure:"http_server_read_timeout_seconds"`
	HttpServerIdleTimeoutSeconds  int      `mapstructure:"http_server_idle_timeout_seconds"`
	MaxHeaderBytes                int      `mapstructure:"http_server_max_header_bytes"`
	ReadHeaderTimeoutSeconds      int      `mapstructure:"http_server_read_header_timeout_seconds"`
	AllowOrigins                  []string `mapstructure:"http_server_allow_origins"`
	StartupMaxAttempts            int      `mapstructure:"startup_max_attempts"`

	// PostgreSQL (decisions, import history, merge log)
	DatabaseEnabled             bool          `mapstructure:"db_enabled"`
	DatabaseHost                string        `mapstructure:"db_host"`
	DatabasePort                string        `mapstructure:"db_port"`
	DatabaseUserName            string        `mapstructure:"db_user_name"`
	DatabasePassword            string        `mapstructure:"db_password"`
	DatabaseName                string        `mapstructure:"db_name"`
	DatabaseSSLMode             string        `mapstructure:"db_ssl_mode"`
	DatabaseMaxOpenConns        int           `mapstructure:"db_max_open_conns"`
	DatabaseMaxIdleConns        int           `mapstructure:"db_max_idle_conns"`
	DatabaseConnMaxLifetime     time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrationVersion    uint          `mapstructure:"db_migration_version"`
	DatabaseMigrationForce      int           `mapstructure:"db_migration_force"`
	DatabaseMigrateOnStart      bool          `mapstructure:"db_migrate_on_start"`

	// Graph Database (Neo4j or Memgraph)
	GraphDBURI      string `mapstructure:"graph_db_uri"`
	GraphDBHost     string `mapstructure:"graph_db_host"`
	GraphDBPort     int    `mapstructure:"graph_db_port"`
	GraphDBUser     string `mapstructure:"graph_db_user"`
	GraphDBPassword string `mapstructure:"graph_db_password"`
	GraphDBName     string `mapstructure:"graph_db_name"`
	GraphDBDialect  string `mapstructure:"graph_db_dialect"`

	// Redis (shared decision store, identity back-off)
	RedisEnabled     bool   `mapstructure:"redis_enabled"`
	RedisHost        string `mapstructure:"redis_host"`
	RedisPort        int    `mapstructure:"redis_port"`
	RedisPassword    string `mapstructure:"redis_password"`
	RedisDB          int    `mapstructure:"redis_db"`
	RedisKeyPrefix   string `mapstructure:"redis_key_prefix"`
	RedisDecisionKey string `mapstructure:"redis_decision_key"`

	// Kafka Producer settings
	KafkaEnabled      bool     `mapstructure:"kafka_enabled"`
	KafkaBrokers      []string `mapstructure:"kafka_brokers"`
	KafkaOutputTopic  string   `mapstructure:"kafka_output_topic"`
	KafkaBatchSize    int      `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout int      `mapstructure:"kafka_batch_timeout_ms"`
	KafkaRequiredAcks int      `mapstructure:"kafka_required_acks"`
	KafkaCompression  string   `mapstructure:"kafka_compression"`

	// Identity validation (Wikidata)
	IdentityEnabled        bool          `mapstructure:"identity_enabled"`
	IdentityBaseURL        string        `mapstructure:"identity_base_url"`
	IdentityUserAgent      string        `mapstructure:"identity_user_agent"`
	IdentityTimeout        time.Duration `mapstructure:"identity_timeout"`
	IdentityMinInterval    time.Duration `mapstructure:"identity_min_interval"`
	IdentityMaxAttempts    int           `mapstructure:"identity_max_attempts"`
	IdentityLabelThreshold float64       `mapstructure:"identity_label_threshold"`

	// Matching
	MatchHighThreshold      float64 `mapstructure:"match_high_threshold"`
	MatchPotentialThreshold float64 `mapstructure:"match_potential_threshold"`
	MatchBlockingLimit      int     `mapstructure:"match_blocking_limit"`
	MatchAutoResolve        bool    `mapstructure:"match_auto_resolve"`
	MatchSimilarityMode     string  `mapstructure:"match_similarity_mode"`

	// Resolution decisions: file, redis or postgres
	DecisionStore     string `mapstructure:"decision_store"`
	DecisionStorePath string `mapstructure:"decision_store_path"`

	// Import
	ImportBatchSize   int    `mapstructure:"import_batch_size"`
	ImportAgent       string `mapstructure:"import_agent"`
	ImportHistoryPath string `mapstructure:"import_history_path"`

	// Merge
	MergeRetireMode string `mapstructure:"merge_retire_mode"`
	MergeTiebreak   string `mapstructure:"merge_tiebreak"`

	// Reports
	ReportS3Region   string `mapstructure:"report_s3_region"`
	ReportS3Endpoint string `mapstructure:"report_s3_endpoint"`
	// empty keys fall back to the default AWS credential chain
	ReportS3AccessKeyID     string `mapstructure:"report_s3_access_key_id"`
	ReportS3SecretAccessKey string `mapstructure:"report_s3_secret_access_key"`

	// Tracing
	OTELExporter         string `mapstructure:"otel_exporter"`
	OTELExporterEndpoint string `mapstructure:"otel_exporter_endpoint"`
	OTELExporterProtocol string `mapstructure:"otel_exporter_protocol"`
	OTELExporterInsecure bool   `mapstructure:"otel_exporter_insecure"`
	OTELExporterHeaders  string `mapstructure:"otel_exporter_headers"`
}

var defaults = map[string]any{
	"app_name":                                "fictotum",
	"port":                                    3002,
	"log_level":                               "info",
	"pretty_logs":                             false,
	"http_server_write_timeout_seconds":       30,
	"http_server_read_timeout_seconds":        10,
	"http_server_idle_timeout_seconds":        10,
	"http_server_max_header_bytes":            64000,
	"http_server_read_header_timeout_seconds": 10,
	"http_server_allow_origins":               []string{"*"},
	"startup_max_attempts":                    5,

	"db_enabled":               false,
	"db_host":                  "localhost",
	"db_port":                  "5432",
	"db_user_name":             "",
	"db_password":              "",
	"db_name":                  "fictotum",
	"db_ssl_mode":              "disable",
	"db_max_open_conns":        25,
	"db_max_idle_conns":        10,
	"db_conn_max_lifetime":     10 * time.Second,
	"db_migration_folder_path": "db/pg",
	"db_migration_version":     0,
	"db_migration_force":       0,
	"db_migrate_on_start":      false,

	"graph_db_uri":      "",
	"graph_db_host":     "localhost",
	"graph_db_port":     7687,
	"graph_db_user":     "",
	"graph_db_password": "",
	"graph_db_name":     "",
	"graph_db_dialect":  "neo4j",

	"redis_enabled":      false,
	"redis_host":         "localhost",
	"redis_port":         6379,
	"redis_password":     "",
	"redis_db":           0,
	"redis_key_prefix":   "fictotum:",
	"redis_decision_key": "fictotum:resolutions",

	"kafka_enabled":          false,
	"kafka_brokers":          []string{"localhost:9092"},
	"kafka_output_topic":     "fictotum-events",
	"kafka_batch_size":       100,
	"kafka_batch_timeout_ms": 100,
	"kafka_required_acks":    1,
	"kafka_compression":      "snappy",

	"identity_enabled":         true,
	"identity_base_url":        "https://www.wikidata.org/w/api.php",
	"identity_user_agent":      "fictotum/1.0 (entity resolution)",
	"identity_timeout":         10 * time.Second,
	"identity_min_interval":    500 * time.Millisecond,
	"identity_max_attempts":    3,
	"identity_label_threshold": 0.75,

	"match_high_threshold":      0.95,
	"match_potential_threshold": 0.85,
	"match_blocking_limit":      50,
	"match_auto_resolve":        false,
	"match_similarity_mode":     "fuzzy",

	"decision_store":      "file",
	"decision_store_path": "data/.ingestion-cache/resolutions.json",

	"import_batch_size":   50,
	"import_agent":        "fictotum-importer",
	"import_history_path": "data/.ingestion-cache/import_history.jsonl",

	"merge_retire_mode": "delete",
	"merge_tiebreak":    "lowest_authoritative_id",

	"report_s3_region":            "",
	"report_s3_endpoint":          "",
	"report_s3_access_key_id":     "",
	"report_s3_secret_access_key": "",

	"otel_exporter":          "none",
	"otel_exporter_endpoint": "",
	"otel_exporter_protocol": "grpc",
	"otel_exporter_insecure": true,
	"otel_exporter_headers":  "",
}

// Load reads .env (when present), then fictotum.yaml (when present), then the
// environment. Environment variables use the upper-cased key, e.g. GRAPH_DB_HOST.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()
	v.SetConfigName("fictotum")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no component can run with
func (c *Config) Validate() error {
	switch c.DecisionStore {
	case "file", "redis", "postgres":
	default:
		return eris.Errorf("config: unknown DECISION_STORE %q", c.DecisionStore)
	}
	if c.DecisionStore == "redis" && !c.RedisEnabled {
		return eris.New("config: DECISION_STORE=redis requires REDIS_ENABLED")
	}
	if c.DecisionStore == "postgres" && !c.DatabaseEnabled {
		return eris.New("config: DECISION_STORE=postgres requires DB_ENABLED")
	}
	switch c.MatchSimilarityMode {
	case "fuzzy", "degraded":
	default:
		return eris.Errorf("config: unknown MATCH_SIMILARITY_MODE %q", c.MatchSimilarityMode)
	}
	if c.MatchPotentialThreshold > c.MatchHighThreshold {
		return eris.Errorf("config: MATCH_POTENTIAL_THRESHOLD %.2f above MATCH_HIGH_THRESHOLD %.2f",
			c.MatchPotentialThreshold, c.MatchHighThreshold)
	}
	if c.ImportBatchSize <= 0 {
		return eris.New("config: IMPORT_BATCH_SIZE must be positive")
	}
	return nil
}

// DatabaseDSN is the lib/pq connection string
func (c *Config) DatabaseDSN() string {
	parts := []string{
		"host=" + c.DatabaseHost,
		"port=" + c.DatabasePort,
		"dbname=" + c.DatabaseName,
		"sslmode=" + c.DatabaseSSLMode,
	}
	if c.DatabaseUserName != "" {
		parts = append(parts, "user="+c.DatabaseUserName)
	}
	if c.DatabasePassword != "" {
		parts = append(parts, "password="+c.DatabasePassword)
	}
	return strings.Join(parts, " ")
}
