package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "config.yaml"

	DefaultMaxRounds    = 10
	DefaultHistoryLimit = 200
)

// Cfg 全局配置，由 Load 初始化
var Cfg = &Config{}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	MySQL   MySQLConfig   `yaml:"mysql"`
	JWT     JWTConfig     `yaml:"jwt"`
	Model   ModelConfig   `yaml:"model"`
	Agent   AgentConfig   `yaml:"agent"`
	MQ      MQConfig      `yaml:"mq"`
	Records RecordsConfig `yaml:"records"`
	Title   TitleConfig   `yaml:"title"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type JWTConfig struct {
	SecretKey string        `yaml:"secret_key"`
	TTL       time.Duration `yaml:"ttl"`
}

type ModelConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	TitleModel   string `yaml:"title_model"`

	// 流式输出可能持续较长时间
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RetryAttempts  uint          `yaml:"retry_attempts"`
}

type AgentConfig struct {
	// 每轮对话允许的最大上游请求次数
	MaxRounds    int `yaml:"max_rounds"`
	HistoryLimit int `yaml:"history_limit"`
}

type MQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	NameServer string `yaml:"name_server"`
	Topic      string `yaml:"topic"`
}

type RecordsConfig struct {
	// db 或 mcp
	Backend     string `yaml:"backend"`
	MCPEndpoint string `yaml:"mcp_endpoint"`
}

type TitleConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Load 读取配置文件并应用环境变量覆盖
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	Cfg = cfg
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_MODEL_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("APP_MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("APP_JWT_SECRET"); v != "" {
		cfg.JWT.SecretKey = v
	}
}

// Validate 填充默认值并检查必填项
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model.DefaultModel == "" {
		c.Model.DefaultModel = "gpt-4o-mini"
	}
	if c.Model.TitleModel == "" {
		c.Model.TitleModel = c.Model.DefaultModel
	}
	if c.Model.RequestTimeout <= 0 {
		c.Model.RequestTimeout = 300 * time.Second
	}
	if c.Model.RetryAttempts == 0 {
		c.Model.RetryAttempts = 3
	}
	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = DefaultMaxRounds
	}
	if c.Agent.HistoryLimit <= 0 {
		c.Agent.HistoryLimit = DefaultHistoryLimit
	}
	if c.Records.Backend == "" {
		c.Records.Backend = "db"
	}
	if c.Title.Workers <= 0 {
		c.Title.Workers = 2
	}
	if c.Title.QueueSize <= 0 {
		c.Title.QueueSize = 100
	}
	if c.MQ.Topic == "" {
		c.MQ.Topic = "topic_assistant_audit"
	}

	var errs []error
	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	switch c.Records.Backend {
	case "db":
	case "mcp":
		if c.Records.MCPEndpoint == "" {
			errs = append(errs, errors.New("records.mcp_endpoint is required for the mcp backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown records.backend %q", c.Records.Backend))
	}
	if c.MQ.Enabled && c.MQ.NameServer == "" {
		errs = append(errs, errors.New("mq.name_server is required when mq is enabled"))
	}
	return errors.Join(errs...)
}
