// Package app holds the configuration and wiring shared by the codepad hosts.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codepad/internal/common/cache"
	"codepad/internal/common/mq"
	"codepad/internal/common/storage"
	"codepad/internal/playground/runtime"
	"codepad/internal/playground/scoring"
	"codepad/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLoadTimeout    = 30 * time.Second
	DefaultMaxSourceBytes = 64 << 10
	DefaultMaxOutputBytes = 1 << 20
	DefaultScoreTimeout   = 3 * time.Second
	DefaultDraftPath      = "configs/codepad_draft.json"
)

// Draft backends.
const (
	DraftMemory = "memory"
	DraftFile   = "file"
	DraftRedis  = "redis"
)

// Scoring backends.
const (
	ScoringNone  = "none"
	ScoringHTTP  = "http"
	ScoringKafka = "kafka"
)

// RuntimeConfig selects and bounds the interpreter.
type RuntimeConfig struct {
	runtime.SourceConfig `yaml:",inline"`

	// Host is auto, packaged or browser.
	Host           string          `yaml:"host"`
	LoadTimeout    time.Duration   `yaml:"loadTimeout"`
	ExecTimeout    time.Duration   `yaml:"execTimeout"`
	MaxSourceBytes int             `yaml:"maxSourceBytes"`
	MaxOutputBytes int             `yaml:"maxOutputBytes"`
	State          runtime.Options `yaml:"state"`
}

// DraftConfig selects where editor drafts persist.
type DraftConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Key     string `yaml:"key"`
}

// ScoringConfig selects where run metrics are reported.
type ScoringConfig struct {
	Backend string        `yaml:"backend"`
	URL     string        `yaml:"url"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the part of a host config that builds playgrounds.
type Config struct {
	Logger  logger.Config       `yaml:"logger"`
	Runtime RuntimeConfig       `yaml:"runtime"`
	Draft   DraftConfig         `yaml:"draft"`
	Redis   cache.RedisConfig   `yaml:"redis"`
	Scoring ScoringConfig       `yaml:"scoring"`
	Kafka   mq.KafkaConfig      `yaml:"kafka"`
	MinIO   storage.MinIOConfig `yaml:"minio"`
}

// LoadYAML reads path into out.
func LoadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

// ApplyDefaults fills unset fields and checks the backend choices.
func (c *Config) ApplyDefaults() error {
	if c.Runtime.Host == "" {
		c.Runtime.Host = "auto"
	}
	if c.Runtime.LoadTimeout == 0 {
		c.Runtime.LoadTimeout = DefaultLoadTimeout
	}
	if c.Runtime.MaxSourceBytes == 0 {
		c.Runtime.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if c.Runtime.MaxOutputBytes == 0 {
		c.Runtime.MaxOutputBytes = DefaultMaxOutputBytes
	}

	c.Draft.Backend = strings.ToLower(c.Draft.Backend)
	switch c.Draft.Backend {
	case "":
		c.Draft.Backend = DraftFile
	case DraftMemory, DraftFile, DraftRedis:
	default:
		return fmt.Errorf("unknown draft backend %q", c.Draft.Backend)
	}
	if c.Draft.Backend == DraftFile && c.Draft.Path == "" {
		c.Draft.Path = DefaultDraftPath
	}
	if c.Draft.Backend == DraftRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required for the redis draft backend")
	}
	if c.Redis.Addr != "" {
		c.Redis = c.Redis.WithDefaults()
	}

	c.Scoring.Backend = strings.ToLower(c.Scoring.Backend)
	switch c.Scoring.Backend {
	case "":
		c.Scoring.Backend = ScoringNone
	case ScoringNone:
	case ScoringHTTP:
		if c.Scoring.URL == "" {
			return fmt.Errorf("scoring.url is required for the http backend")
		}
	case ScoringKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required for the kafka scoring backend")
		}
		if c.Scoring.Topic == "" {
			c.Scoring.Topic = scoring.DefaultTopic
		}
	default:
		return fmt.Errorf("unknown scoring backend %q", c.Scoring.Backend)
	}
	if c.Scoring.Timeout == 0 {
		c.Scoring.Timeout = DefaultScoreTimeout
	}

	if strings.HasPrefix(c.Runtime.RemoteURL, "s3://") && c.MinIO.Endpoint == "" {
		return fmt.Errorf("minio endpoint is required for an s3 runtime url")
	}
	return nil
}
