package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Qdrant      QdrantConfig      `mapstructure:"qdrant"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Chat        ChatConfig        `mapstructure:"chat"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Acquire     AcquireConfig     `mapstructure:"acquire"`
	Chunker     ChunkerConfig     `mapstructure:"chunker"`
	Retriever   RetrieverConfig   `mapstructure:"retriever"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type TranscriberConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type ChatConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"` // default model; requests may override
	APIKey       string `mapstructure:"api_key"`
	SummaryLimit int    `mapstructure:"summary_limit"` // transcript chars fed to summarization
}

type EmbeddingConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	Workers    int    `mapstructure:"workers"`
}

type AcquireConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"` // bound on the whole strategy chain
	YtDlpPath string        `mapstructure:"ytdlp_path"`
	WorkDir   string        `mapstructure:"work_dir"` // parent of per-acquisition temp dirs
}

type ChunkerConfig struct {
	Size    int `mapstructure:"size"`
	Overlap int `mapstructure:"overlap"`
}

type RetrieverConfig struct {
	TopK          int `mapstructure:"top_k"`
	MaxTopK       int `mapstructure:"max_top_k"`
	ContextBudget int `mapstructure:"context_budget"` // context chars handed to the chat model
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("transcriber.base_url", "TRANSCRIBER_BASE_URL")
	v.BindEnv("transcriber.api_key", "TRANSCRIBER_API_KEY")
	v.BindEnv("chat.base_url", "CHAT_BASE_URL")
	v.BindEnv("chat.api_key", "CHAT_API_KEY")
	v.BindEnv("embedding.base_url", "EMBEDDING_BASE_URL")
	v.BindEnv("embedding.api_key", "EMBEDDING_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", false)
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/audigest.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "transcript_chunks")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "transcripts")
	v.SetDefault("transcriber.base_url", "http://localhost:8090/v1")
	v.SetDefault("transcriber.model", "whisper-1")
	v.SetDefault("chat.base_url", "http://localhost:11434/v1")
	v.SetDefault("chat.model", "llama3.2:1b")
	v.SetDefault("chat.summary_limit", 8000)
	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("acquire.timeout", "10m")
	v.SetDefault("acquire.ytdlp_path", "yt-dlp")
	v.SetDefault("acquire.work_dir", "")
	v.SetDefault("chunker.size", 500)
	v.SetDefault("chunker.overlap", 50)
	v.SetDefault("retriever.top_k", 5)
	v.SetDefault("retriever.max_top_k", 20)
	v.SetDefault("retriever.context_budget", 4000)
}

// validate rejects configurations that can only fail at runtime.
func (c *Config) validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return fmt.Errorf("chunker.overlap must be in [0, size), got %d with size %d", c.Chunker.Overlap, c.Chunker.Size)
	}
	if c.Retriever.TopK <= 0 || c.Retriever.TopK > c.Retriever.MaxTopK {
		return fmt.Errorf("retriever.top_k must be in (0, %d], got %d", c.Retriever.MaxTopK, c.Retriever.TopK)
	}
	return nil
}
