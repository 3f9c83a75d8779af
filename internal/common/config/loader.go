package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top,
// expands ${ENV} references and applies defaults before validating.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads a single explicit config file.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setBoolDefaults(v)
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Booleans that default to true cannot be told apart from "unset" after unmarshal.
func setBoolDefaults(v *viper.Viper) {
	v.SetDefault("nlweb.decontextualize_enabled", true)
	v.SetDefault("nlweb.memory_enabled", false)
	v.SetDefault("nlweb.site_relevance_enabled", true)
	v.SetDefault("nlweb.required_info_enabled", true)
	v.SetDefault("nlweb.analyze_query_enabled", false)
	v.SetDefault("nlweb.fast_track_enabled", false)
	v.SetDefault("server.enable_cors", true)
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		} else if val := os.Getenv("OPENAI_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.LLM.Endpoint == "" {
		if val := os.Getenv("LLM_ENDPOINT"); val != "" {
			cfg.LLM.Endpoint = val
		}
	}
	for i, b := range cfg.Retrieval.Backends {
		if b.Type == "qdrant" && b.APIKey == "" {
			cfg.Retrieval.Backends[i].APIKey = os.Getenv("QDRANT_API_KEY")
		}
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "nlweb-orchestrator"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.HeartbeatInterval == 0 {
		cfg.Server.HeartbeatInterval = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 60000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	if cfg.LLM.Models.Low == "" {
		cfg.LLM.Models.Low = "gpt-4.1-mini"
	}
	if cfg.LLM.Models.High == "" {
		cfg.LLM.Models.High = "gpt-4.1"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 8000
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 512
	}

	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 50
	}
	if cfg.Retrieval.Timeout == 0 {
		cfg.Retrieval.Timeout = 10000
	}
	for i := range cfg.Retrieval.Backends {
		b := &cfg.Retrieval.Backends[i]
		if b.Name == "" {
			b.Name = b.Type
		}
		if b.TopK == 0 {
			b.TopK = cfg.Retrieval.DefaultTopK
		}
		if b.Timeout == 0 {
			b.Timeout = cfg.Retrieval.Timeout
		}
		if b.Type == "elasticsearch" && b.URL == "" {
			b.URL = cfg.Database.Elasticsearch.GetURL()
		}
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.NLWeb.DefaultItemType == "" {
		cfg.NLWeb.DefaultItemType = "Thing"
	}

	if cfg.Ranking.MaxConcurrent == 0 {
		cfg.Ranking.MaxConcurrent = 5
	}
	if cfg.Ranking.Threshold == 0 {
		cfg.Ranking.Threshold = 50
	}
	if cfg.Ranking.MaxResults == 0 {
		cfg.Ranking.MaxResults = 10
	}
	if cfg.Ranking.BatchSize == 0 {
		cfg.Ranking.BatchSize = 1
	}
	if cfg.Ranking.CallTimeout == 0 {
		cfg.Ranking.CallTimeout = cfg.LLM.Timeout
	}
	if cfg.Ranking.CacheTTL == 0 {
		cfg.Ranking.CacheTTL = 300000
	}
	if cfg.Ranking.CacheSize == 0 {
		cfg.Ranking.CacheSize = 4096
	}

	if cfg.PostProcess.TopK == 0 {
		cfg.PostProcess.TopK = 5
	}
	if cfg.PostProcess.MaxSynthesisAttempts == 0 {
		cfg.PostProcess.MaxSynthesisAttempts = 2
	}
	if cfg.PostProcess.Timeout == 0 {
		cfg.PostProcess.Timeout = 30000
	}

	if cfg.Memory.Timeout == 0 {
		cfg.Memory.Timeout = 5000
	}
	if cfg.Memory.Postgres.Table == "" {
		cfg.Memory.Postgres.Table = "query_memory"
	}
	if cfg.Memory.NATS.Stream == "" {
		cfg.Memory.NATS.Stream = "NLWEB_MEMORY"
	}
	if cfg.Memory.NATS.Subject == "" {
		cfg.Memory.NATS.Subject = "nlweb.memory"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}

	enabled := 0
	for _, b := range cfg.Retrieval.Backends {
		if !b.Enabled {
			continue
		}
		enabled++
		switch b.Type {
		case "elasticsearch":
			if b.URL == "" {
				return fmt.Errorf("retrieval backend %q: url or database.elasticsearch.addresses is required", b.Name)
			}
			if b.Index == "" {
				return fmt.Errorf("retrieval backend %q: index is required", b.Name)
			}
		case "qdrant":
			if b.URL == "" || b.Collection == "" {
				return fmt.Errorf("retrieval backend %q: url and collection are required", b.Name)
			}
		case "chromem":
		default:
			return fmt.Errorf("retrieval backend %q: unknown type %q", b.Name, b.Type)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one enabled retrieval backend is required")
	}

	if cfg.Ranking.MaxConcurrent < 1 {
		return fmt.Errorf("ranking.max_concurrent must be at least 1")
	}
	if cfg.Ranking.Threshold < 0 || cfg.Ranking.Threshold > 100 {
		return fmt.Errorf("ranking.threshold must be within 0-100")
	}
	for site, t := range cfg.Ranking.SiteThresholds {
		if t < 0 || t > 100 {
			return fmt.Errorf("ranking.site_thresholds.%s must be within 0-100", site)
		}
	}
	for itemType, t := range cfg.Ranking.ItemTypeThresholds {
		if t < 0 || t > 100 {
			return fmt.Errorf("ranking.item_type_thresholds.%s must be within 0-100", itemType)
		}
	}

	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}
	if cfg.Memory.Postgres.Enabled && !cfg.Database.Postgres.Configured() {
		return fmt.Errorf("database.postgres is required when memory.postgres is enabled")
	}
	if cfg.Memory.NATS.Enabled && cfg.Memory.NATS.URL == "" {
		return fmt.Errorf("memory.nats.url is required when memory.nats is enabled")
	}
	if cfg.Memory.SNS.Enabled && cfg.Memory.SNS.TopicARN == "" {
		return fmt.Errorf("memory.sns.topic_arn is required when memory.sns is enabled")
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       false,
		MaxJobsActive: 5,
		Timeout:       60000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	return cfg.Camunda.Enabled && GetWorkerConfig(cfg, workerName).Enabled
}
