package config

import (
	"fmt"
	"strings"
)

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	LLM           LLMConfig               `mapstructure:"llm"`
	Retrieval     RetrievalConfig         `mapstructure:"retrieval"`
	Database      DatabaseConfig          `mapstructure:"database"`
	NLWeb         NLWebConfig             `mapstructure:"nlweb"`
	Ranking       RankingConfig           `mapstructure:"ranking"`
	PostProcess   PostProcessConfig       `mapstructure:"postprocess"`
	Memory        MemoryConfig            `mapstructure:"memory"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address           string `mapstructure:"address"`
	EnableCORS        bool   `mapstructure:"enable_cors"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval"` // milliseconds
	ShutdownTimeout   int    `mapstructure:"shutdown_timeout"`   // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"` // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"`
}

type LLMConfig struct {
	Provider       string      `mapstructure:"provider"`
	Endpoint       string      `mapstructure:"endpoint"`
	APIKey         string      `mapstructure:"api_key"`
	Models         ModelConfig `mapstructure:"models"`
	EmbeddingModel string      `mapstructure:"embedding_model"`
	Temperature    float64     `mapstructure:"temperature"`
	MaxTokens      int         `mapstructure:"max_tokens"`
	Timeout        int         `mapstructure:"timeout"` // milliseconds, per call
	MaxRetries     int         `mapstructure:"max_retries"`
}

// ModelConfig names the model used for each prompt level.
type ModelConfig struct {
	High string `mapstructure:"high"`
	Low  string `mapstructure:"low"`
}

type RetrievalConfig struct {
	Backends    []BackendConfig `mapstructure:"backends"`
	DefaultTopK int             `mapstructure:"default_top_k"`
	Timeout     int             `mapstructure:"timeout"` // milliseconds, per backend call
}

type BackendConfig struct {
	Name        string   `mapstructure:"name"`
	Type        string   `mapstructure:"type"` // elasticsearch, chromem, qdrant
	Enabled     bool     `mapstructure:"enabled"`
	Sites       []string `mapstructure:"sites"`
	Index       string   `mapstructure:"index"`
	URL         string   `mapstructure:"url"`
	APIKey      string   `mapstructure:"api_key"`
	Collection  string   `mapstructure:"collection"`
	PersistPath string   `mapstructure:"persist_path"`
	TopK        int      `mapstructure:"top_k"`
	Timeout     int      `mapstructure:"timeout"` // milliseconds
}

// ServesAll reports whether the backend has no site scope.
func (b BackendConfig) ServesAll() bool {
	for _, s := range b.Sites {
		if s == "all" {
			return true
		}
	}
	return len(b.Sites) == 0
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

func (p PostgresConfig) Configured() bool {
	return p.Host != "" && p.Database != ""
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NLWebConfig holds site policy and the switches for each pre-retrieval analysis call.
type NLWebConfig struct {
	Sites                  []string          `mapstructure:"sites"`
	SiteItemTypes          map[string]string `mapstructure:"site_item_types"`
	DefaultItemType        string            `mapstructure:"default_item_type"`
	PromptRegistryPath     string            `mapstructure:"prompt_registry_path"`
	DecontextualizeEnabled bool              `mapstructure:"decontextualize_enabled"`
	MemoryEnabled          bool              `mapstructure:"memory_enabled"`
	SiteRelevanceEnabled   bool              `mapstructure:"site_relevance_enabled"`
	RequiredInfoEnabled    bool              `mapstructure:"required_info_enabled"`
	AnalyzeQueryEnabled    bool              `mapstructure:"analyze_query_enabled"`
	FastTrackEnabled       bool              `mapstructure:"fast_track_enabled"`
}

// IsSiteAllowed reports whether a site passes the allow-list; an empty list or "all" allows every site.
func (n NLWebConfig) IsSiteAllowed(site string) bool {
	if len(n.Sites) == 0 {
		return true
	}
	for _, s := range n.Sites {
		if s == "all" || strings.EqualFold(s, site) {
			return true
		}
	}
	return false
}

// ItemTypeFor returns the schema.org type a site's items are described with.
func (n NLWebConfig) ItemTypeFor(site string) string {
	if t, ok := n.SiteItemTypes[strings.ToLower(site)]; ok && t != "" {
		return t
	}
	return n.DefaultItemType
}

// RankingConfig thresholds: a single-site query uses SiteThresholds, then
// ItemTypeThresholds for the resolved type, then Threshold.
type RankingConfig struct {
	MaxConcurrent      int            `mapstructure:"max_concurrent"`
	Threshold          int            `mapstructure:"threshold"`
	SiteThresholds     map[string]int `mapstructure:"site_thresholds"`
	ItemTypeThresholds map[string]int `mapstructure:"item_type_thresholds"`
	MaxResults         int            `mapstructure:"max_results"`
	BatchSize          int            `mapstructure:"batch_size"`
	CallTimeout        int            `mapstructure:"call_timeout"` // milliseconds
	CacheTTL           int            `mapstructure:"cache_ttl"`    // milliseconds
	CacheSize          int            `mapstructure:"cache_size"`
}

type PostProcessConfig struct {
	TopK                 int `mapstructure:"top_k"`
	MaxSynthesisAttempts int `mapstructure:"max_synthesis_attempts"`
	Timeout              int `mapstructure:"timeout"` // milliseconds
}

type MemoryConfig struct {
	Postgres struct {
		Enabled bool   `mapstructure:"enabled"`
		Table   string `mapstructure:"table"`
	} `mapstructure:"postgres"`
	NATS struct {
		Enabled bool   `mapstructure:"enabled"`
		URL     string `mapstructure:"url"`
		Stream  string `mapstructure:"stream"`
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
	Timeout int `mapstructure:"timeout"` // milliseconds
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}
