package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"sharad-cli/internal/retry"
)

var (
	ErrMissingAPIKey   = errors.New("llm.api_key is required (or set OPENAI_API_KEY)")
	ErrInvalidInterval = errors.New("game.poll_interval must be positive")
	ErrInvalidTimeout  = errors.New("game.turn_timeout must be larger than game.poll_interval")
)

// RetryConfig 重试配置，时间单位为秒
type RetryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxRetries      int     `yaml:"max_retries"`
	InitialDelay    float64 `yaml:"initial_delay"`
	MaxDelay        float64 `yaml:"max_delay"`
	ExponentialBase float64 `yaml:"exponential_base"`
}

// ToRetry 转换为 retry 包使用的配置
func (r RetryConfig) ToRetry() *retry.Config {
	return &retry.Config{
		Enabled:         r.Enabled,
		MaxRetries:      r.MaxRetries,
		InitialDelay:    seconds(r.InitialDelay),
		MaxDelay:        seconds(r.MaxDelay),
		ExponentialBase: r.ExponentialBase,
	}
}

// LLMConfig LLM 配置
type LLMConfig struct {
	APIKey     string      `yaml:"api_key"`
	APIBase    string      `yaml:"api_base"`
	Model      string      `yaml:"model"`
	ImageModel string      `yaml:"image_model"`
	Retry      RetryConfig `yaml:"retry"`
}

// GameConfig 游戏与回合配置，时间单位为秒
type GameConfig struct {
	AssistantID      string  `yaml:"assistant_id"`
	AssistantName    string  `yaml:"assistant_name"`
	SaveName         string  `yaml:"save_name"`
	PollInterval     float64 `yaml:"poll_interval"`
	TurnTimeout      float64 `yaml:"turn_timeout"`
	ActionTokenLimit int     `yaml:"action_token_limit"`
	RecapTokenLimit  int     `yaml:"recap_token_limit"`
	Instructions     string  `yaml:"instructions"`
}

func (g GameConfig) PollEvery() time.Duration { return seconds(g.PollInterval) }
func (g GameConfig) Timeout() time.Duration   { return seconds(g.TurnTimeout) }

// PathsConfig 本地文件目录
type PathsConfig struct {
	DataDir  string `yaml:"data_dir"`
	ImageDir string `yaml:"image_dir"`
	LogDir   string `yaml:"log_dir"`
}

// TelemetryConfig OpenTelemetry 配置
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Config 主配置
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Game      GameConfig      `yaml:"game"`
	Paths     PathsConfig     `yaml:"paths"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			APIBase:    "https://api.openai.com/v1",
			Model:      "gpt-4o",
			ImageModel: "dall-e-3",
			Retry: RetryConfig{
				Enabled:         true,
				MaxRetries:      3,
				InitialDelay:    1.0,
				MaxDelay:        60.0,
				ExponentialBase: 2.0,
			},
		},
		Game: GameConfig{
			AssistantName:    "Sharad Game Master",
			SaveName:         "default",
			PollInterval:     0.5,
			TurnTimeout:      300,
			ActionTokenLimit: 2000,
			RecapTokenLimit:  60000,
		},
		Paths: PathsConfig{
			DataDir: "data",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "sharad-cli",
		},
	}
}

// LoadFromFile 从 YAML 文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load 读取配置文件（不存在时使用默认值），再叠加环境变量
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadFromFile(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.fillPaths()
	return cfg, nil
}

// ---- Environment ----

// envOverrides 可由环境变量覆盖的配置项
type envOverrides struct {
	APIKey       string `env:"OPENAI_API_KEY"`
	APIBase      string `env:"OPENAI_BASE_URL"`
	Model        string `env:"SHARAD_MODEL"`
	AssistantID  string `env:"SHARAD_ASSISTANT_ID"`
	DataDir      string `env:"SHARAD_DATA_DIR"`
	OTLPEndpoint string `env:"SHARAD_OTLP_ENDPOINT"`
}

// ParseEnv 把环境变量解析到 target
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyEnv 用非空的环境变量覆盖配置
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := ParseEnv(&o); err != nil {
		return err
	}

	override(&c.LLM.APIKey, o.APIKey)
	override(&c.LLM.APIBase, o.APIBase)
	override(&c.LLM.Model, o.Model)
	override(&c.Game.AssistantID, o.AssistantID)
	override(&c.Paths.DataDir, o.DataDir)
	if o.OTLPEndpoint != "" {
		c.Telemetry.Endpoint = o.OTLPEndpoint
		c.Telemetry.Enabled = true
	}
	return nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// fillPaths 未配置的子目录放在 data_dir 下
func (c *Config) fillPaths() {
	if c.Paths.ImageDir == "" {
		c.Paths.ImageDir = filepath.Join(c.Paths.DataDir, "images")
	}
	if c.Paths.LogDir == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
}

// Validate 检查必填项与时间参数
func (c *Config) Validate() error {
	var errs []error
	if c.LLM.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.Game.PollInterval <= 0 {
		errs = append(errs, ErrInvalidInterval)
	} else if c.Game.TurnTimeout <= c.Game.PollInterval {
		errs = append(errs, ErrInvalidTimeout)
	}
	return errors.Join(errs...)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
