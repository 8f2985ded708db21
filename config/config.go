// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service configuration from an optional YAML file, an
// optional .env file and DOCREPLY_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docreply/ai"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DOCREPLY_"

// Storage backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Pacers for embedding batch groups.
const (
	PacerInterval    = "interval"
	PacerTokenBucket = "token_bucket"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	AI        AIConfig        `yaml:"ai"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Responder ResponderConfig `yaml:"responder"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	OCR       OCRConfig       `yaml:"ocr"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr               string        `yaml:"addr"`
	ReadTimeout        time.Duration `yaml:"readTimeout"`
	WriteTimeout       time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdownTimeout"`
	WebhookVerifyToken string        `yaml:"webhookVerifyToken"`
	MaxUploadBytes     int64         `yaml:"maxUploadBytes"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"inMemory"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// RedisConfig enables the shared event claim when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	ClaimTTL time.Duration `yaml:"claimTTL"`
}

// KafkaConfig enables queued event intake when Brokers is set.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"groupId"`
}

// AIConfig holds model endpoints and generation settings.
type AIConfig struct {
	EmbeddingHost   string        `yaml:"embeddingHost"`
	EmbeddingModel  string        `yaml:"embeddingModel"`
	EmbeddingToken  string        `yaml:"embeddingToken"`
	CompletionHost  string        `yaml:"completionHost"`
	CompletionModel string        `yaml:"completionModel"`
	CompletionToken string        `yaml:"completionToken"`
	Temperature     float64       `yaml:"temperature"`
	MaxTokens       int           `yaml:"maxTokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// EmbeddingConfig controls retry and batch pacing.
type EmbeddingConfig struct {
	GroupSize      int           `yaml:"groupSize"`
	GroupDelay     time.Duration `yaml:"groupDelay"`
	MaxRetries     int           `yaml:"maxRetries"`
	BaseDelay      time.Duration `yaml:"baseDelay"`
	RetryTransient bool          `yaml:"retryTransient"`
	Pacer          string        `yaml:"pacer"`
}

// IngestionConfig controls chunking and background ingestion.
type IngestionConfig struct {
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	PoolSize     int `yaml:"poolSize"`
}

// ResponderConfig controls retrieval depth, history and concurrency.
type ResponderConfig struct {
	K            int `yaml:"k"`
	HistoryTurns int `yaml:"historyTurns"`
	PoolSize     int `yaml:"poolSize"`
}

// DeliveryConfig points at the messaging provider.
type DeliveryConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// OCRConfig enables image uploads when APIKey is set. VisionModel serves
// the transcribe processing mode on the same host and key.
type OCRConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	APIKey      string `yaml:"apiKey"`
	Model       string `yaml:"model"`
	VisionModel string `yaml:"visionModel"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  20 << 20,
		},
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "./data/docreply",
		},
		Postgres: PostgresConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize: 10,
			ClaimTTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Topic:   "docreply.inbound",
			GroupID: "docreply-responder",
		},
		AI: AIConfig{
			EmbeddingHost:   aiDefaults.EmbeddingHost,
			EmbeddingModel:  aiDefaults.EmbeddingModel,
			CompletionHost:  aiDefaults.CompletionHost,
			CompletionModel: aiDefaults.CompletionModel,
			Temperature:     aiDefaults.Temperature,
			MaxTokens:       aiDefaults.MaxTokens,
			Timeout:         aiDefaults.RequestTimeout,
		},
		Embedding: EmbeddingConfig{
			GroupSize:  55,
			GroupDelay: 61 * time.Second,
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Pacer:      PacerInterval,
		},
		Ingestion: IngestionConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
			PoolSize:     4,
		},
		Responder: ResponderConfig{
			K:            5,
			HistoryTurns: 10,
			PoolSize:     8,
		},
		Delivery: DeliveryConfig{
			BaseURL: "https://api.11za.in",
			Timeout: 30 * time.Second,
		},
		OCR: OCRConfig{
			BaseURL:     "https://api.mistral.ai",
			Model:       "mistral-ocr-latest",
			VisionModel: "pixtral-12b-2409",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (if non-empty), loads envFile into the
// process environment (if it exists) and applies DOCREPLY_* overrides.
// Variables already set in the environment win over the .env file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Storage.Backend != BackendBadger && c.Storage.Backend != BackendPostgres:
		return fmt.Errorf("config: storage.backend must be %q or %q, got %q", BackendBadger, BackendPostgres, c.Storage.Backend)
	case c.Storage.Backend == BackendBadger && c.Storage.Path == "" && !c.Storage.InMemory:
		return errors.New("config: storage.path is required for the badger backend")
	case c.Storage.Backend == BackendPostgres && c.Postgres.DSN == "":
		return errors.New("config: postgres.dsn is required for the postgres backend")
	case c.Ingestion.ChunkSize <= 0 || c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkSize <= c.Ingestion.ChunkOverlap:
		return fmt.Errorf("config: ingestion.chunkSize (%d) must be positive and greater than chunkOverlap (%d)", c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap)
	case c.Embedding.GroupSize < 1:
		return errors.New("config: embedding.groupSize must be at least 1")
	case c.Embedding.MaxRetries < 0:
		return errors.New("config: embedding.maxRetries cannot be negative")
	case c.Embedding.GroupDelay < 0:
		return errors.New("config: embedding.groupDelay cannot be negative")
	case c.Embedding.Pacer != PacerInterval && c.Embedding.Pacer != PacerTokenBucket:
		return fmt.Errorf("config: embedding.pacer must be %q or %q, got %q", PacerInterval, PacerTokenBucket, c.Embedding.Pacer)
	case c.Responder.K < 1:
		return errors.New("config: responder.k must be at least 1")
	case c.Responder.HistoryTurns < 0:
		return errors.New("config: responder.historyTurns cannot be negative")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "":
		return errors.New("config: kafka.topic is required when brokers are set")
	}
	return c.AIProviderConfig().Validate()
}

// AIProviderConfig converts the AI section for ai/openai.NewProvider.
func (c *Config) AIProviderConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithEmbeddingToken(c.AI.EmbeddingToken),
		ai.WithCompletionHost(c.AI.CompletionHost),
		ai.WithCompletionModel(c.AI.CompletionModel),
		ai.WithCompletionToken(c.AI.CompletionToken),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
		ai.WithRequestTimeout(c.AI.Timeout),
	)
}

type setter func(string) error

func str(dst *string) setter {
	return func(v string) error { *dst = v; return nil }
}

func integer(dst *int) setter {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func integer64(dst *int64) setter {
	return func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func float(dst *float64) setter {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolean(dst *bool) setter {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func duration(dst *time.Duration) setter {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

func list(dst *[]string) setter {
	return func(v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
		return nil
	}
}

func (c *Config) envSetters() map[string]setter {
	return map[string]setter{
		"SERVER_ADDR":               str(&c.Server.Addr),
		"SERVER_READ_TIMEOUT":       duration(&c.Server.ReadTimeout),
		"SERVER_WRITE_TIMEOUT":      duration(&c.Server.WriteTimeout),
		"SERVER_SHUTDOWN_TIMEOUT":   duration(&c.Server.ShutdownTimeout),
		"WEBHOOK_VERIFY_TOKEN":      str(&c.Server.WebhookVerifyToken),
		"SERVER_MAX_UPLOAD_BYTES":   integer64(&c.Server.MaxUploadBytes),
		"STORAGE_BACKEND":           str(&c.Storage.Backend),
		"STORAGE_PATH":              str(&c.Storage.Path),
		"STORAGE_IN_MEMORY":         boolean(&c.Storage.InMemory),
		"POSTGRES_DSN":              str(&c.Postgres.DSN),
		"POSTGRES_MAX_OPEN_CONNS":   integer(&c.Postgres.MaxOpenConns),
		"POSTGRES_MAX_IDLE_CONNS":   integer(&c.Postgres.MaxIdleConns),
		"REDIS_ADDR":                str(&c.Redis.Addr),
		"REDIS_PASSWORD":            str(&c.Redis.Password),
		"REDIS_DB":                  integer(&c.Redis.DB),
		"REDIS_CLAIM_TTL":           duration(&c.Redis.ClaimTTL),
		"KAFKA_BROKERS":             list(&c.Kafka.Brokers),
		"KAFKA_TOPIC":               str(&c.Kafka.Topic),
		"KAFKA_GROUP_ID":            str(&c.Kafka.GroupID),
		"EMBEDDING_HOST":            str(&c.AI.EmbeddingHost),
		"EMBEDDING_MODEL":           str(&c.AI.EmbeddingModel),
		"EMBEDDING_TOKEN":           str(&c.AI.EmbeddingToken),
		"COMPLETION_HOST":           str(&c.AI.CompletionHost),
		"COMPLETION_MODEL":          str(&c.AI.CompletionModel),
		"COMPLETION_TOKEN":          str(&c.AI.CompletionToken),
		"TEMPERATURE":               float(&c.AI.Temperature),
		"MAX_TOKENS":                integer(&c.AI.MaxTokens),
		"AI_TIMEOUT":                duration(&c.AI.Timeout),
		"EMBEDDING_GROUP_SIZE":      integer(&c.Embedding.GroupSize),
		"EMBEDDING_GROUP_DELAY":     duration(&c.Embedding.GroupDelay),
		"EMBEDDING_MAX_RETRIES":     integer(&c.Embedding.MaxRetries),
		"EMBEDDING_BASE_DELAY":      duration(&c.Embedding.BaseDelay),
		"EMBEDDING_RETRY_TRANSIENT": boolean(&c.Embedding.RetryTransient),
		"EMBEDDING_PACER":           str(&c.Embedding.Pacer),
		"CHUNK_SIZE":                integer(&c.Ingestion.ChunkSize),
		"CHUNK_OVERLAP":             integer(&c.Ingestion.ChunkOverlap),
		"INGESTION_POOL_SIZE":       integer(&c.Ingestion.PoolSize),
		"RETRIEVAL_K":               integer(&c.Responder.K),
		"HISTORY_TURNS":             integer(&c.Responder.HistoryTurns),
		"RESPONDER_POOL_SIZE":       integer(&c.Responder.PoolSize),
		"DELIVERY_BASE_URL":         str(&c.Delivery.BaseURL),
		"DELIVERY_TIMEOUT":          duration(&c.Delivery.Timeout),
		"OCR_BASE_URL":              str(&c.OCR.BaseURL),
		"OCR_API_KEY":               str(&c.OCR.APIKey),
		"OCR_MODEL":                 str(&c.OCR.Model),
		"OCR_VISION_MODEL":          str(&c.OCR.VisionModel),
		"LOG_LEVEL":                 str(&c.Logging.Level),
		"LOG_FORMAT":                str(&c.Logging.Format),
	}
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for name, set := range c.envSetters() {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}
