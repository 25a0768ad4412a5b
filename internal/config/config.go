package config

import (
	"fmt"
	"os"
	"time"

	"bizgrow/pkg/config"
)

// RelayConfig 通知中继相关配置
type RelayConfig struct {
	CurrencySymbol string `yaml:"currency_symbol"`
}

// WorkerConfig pushworker 的队列配置
type WorkerConfig struct {
	Queue    string        `yaml:"queue"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

type Config struct {
	Env       string                 `yaml:"env"`
	LogLevel  string                 `yaml:"log_level"`
	DB        config.DBConfig        `yaml:"db"`
	MQ        config.MQConfig        `yaml:"mq"`
	Redis     config.RedisConfig     `yaml:"redis"`
	JWT       config.JWTConfig       `yaml:"jwt"`
	Server    config.ServerConfig    `yaml:"server"`
	AIGateway config.AIGatewayConfig `yaml:"ai_gateway"`
	Push      config.PushConfig      `yaml:"push"`
	Otel      config.OtelConfig      `yaml:"otel"`
	Relay     RelayConfig            `yaml:"relay"`
	Worker    WorkerConfig           `yaml:"worker"`
}

// Load 读取 config/base.yaml 与 config/<CONFIG_ENV>.yaml，再用环境变量覆盖
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	dir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideAIGatewayFromEnv(&cfg.AIGateway)
	config.OverridePushFromEnv(&cfg.Push)
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	switch c.Push.Mode {
	case "", "direct", "queue":
	default:
		return fmt.Errorf("push.mode must be direct or queue, got %q", c.Push.Mode)
	}
	if c.Push.Mode == "queue" && c.MQ.URL == "" {
		return fmt.Errorf("mq.url is required when push.mode is queue")
	}
	return nil
}
