package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Story    StoryConfig    `yaml:"story"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
}

type OpenAIConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// StoryConfig carries the narrative length bands. Zero values fall back to
// the defaults applied in ApplyDefaults.
type StoryConfig struct {
	ChapterMinChars int    `yaml:"chapter_min_chars"`
	ChapterMaxChars int    `yaml:"chapter_max_chars"`
	TitleMinChars   int    `yaml:"title_min_chars"`
	TitleMaxChars   int    `yaml:"title_max_chars"`
	DefaultWorld    string `yaml:"default_world"`
	MaxEventChars   int    `yaml:"max_event_chars"`
}

type LoggingConfig struct {
	Level         string        `yaml:"level"`
	Format        string        `yaml:"format"`
	Output        string        `yaml:"output"`
	LLMRetention  time.Duration `yaml:"llm_retention"`
	LLMBodyLimit  int           `yaml:"llm_body_limit"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.AI.OpenAI.BaseURL = baseURL
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Database.Redis.Password = password
	}
	if password := os.Getenv("MYSQL_PASSWORD"); password != "" {
		cfg.Database.MySQL.Password = password
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with the values the engine assumes.
func (c *Config) ApplyDefaults() {
	if c.Story.ChapterMinChars == 0 {
		c.Story.ChapterMinChars = 700
	}
	if c.Story.ChapterMaxChars == 0 {
		c.Story.ChapterMaxChars = 900
	}
	if c.Story.TitleMinChars == 0 {
		c.Story.TitleMinChars = 6
	}
	if c.Story.TitleMaxChars == 0 {
		c.Story.TitleMaxChars = 16
	}
	if c.Story.DefaultWorld == "" {
		c.Story.DefaultWorld = "middle_earth"
	}
	if c.Story.MaxEventChars == 0 {
		c.Story.MaxEventChars = 200
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.OpenAI.MaxTokens == 0 {
		c.AI.OpenAI.MaxTokens = 3000
	}
	if c.AI.OpenAI.Temperature == 0 {
		c.AI.OpenAI.Temperature = 0.6
	}
	if c.AI.OpenAI.Timeout == 0 {
		c.AI.OpenAI.Timeout = 90 * time.Second
	}
	if c.Logging.LLMRetention == 0 {
		c.Logging.LLMRetention = 24 * time.Hour
	}
	if c.Logging.LLMBodyLimit == 0 {
		c.Logging.LLMBodyLimit = 8000
	}
}
