package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		Root string `yaml:"root"`
		DB   string `yaml:"db"`
	} `yaml:"project"`
	Index struct {
		Workers   int `yaml:"workers"`
		CacheSize int `yaml:"cache_size"`
	} `yaml:"index"`
	Retrieval struct {
		HopLimit       int     `yaml:"hop_limit"`
		Decay          float64 `yaml:"decay"`
		OwnershipBonus float64 `yaml:"ownership_bonus"`
		Cap            int     `yaml:"cap"`
	} `yaml:"retrieval"`
	AI struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"ai"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.Project.Root = "."
	cfg.Project.DB = "javagent.db"
	cfg.Index.Workers = 4
	cfg.Index.CacheSize = 256
	cfg.Retrieval.HopLimit = 2
	cfg.Retrieval.Decay = 0.5
	cfg.Retrieval.OwnershipBonus = 0.15
	cfg.Retrieval.Cap = 32
	cfg.AI.Provider = "gemini"
	return cfg
}

// LoadConfig reads the YAML file, fills gaps with defaults and applies
// environment overrides. A missing file is not an error: defaults plus
// environment apply.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, err
		}
	}

	// 3. Override with Environment Variables if present
	if apiKey := os.Getenv("JAVAGENT_API_KEY"); apiKey != "" {
		cfg.AI.APIKey = apiKey
	}
	if provider := os.Getenv("JAVAGENT_AI_PROVIDER"); provider != "" {
		cfg.AI.Provider = provider
	}
	if model := os.Getenv("JAVAGENT_AI_MODEL"); model != "" {
		cfg.AI.Model = model
	}
	if workers := os.Getenv("JAVAGENT_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil && n > 0 {
			cfg.Index.Workers = n
		}
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	d := Default()
	if c.Project.Root == "" {
		c.Project.Root = d.Project.Root
	}
	if c.Project.DB == "" {
		c.Project.DB = d.Project.DB
	}
	if c.Index.Workers < 1 {
		c.Index.Workers = d.Index.Workers
	}
	if c.Index.CacheSize < 1 {
		c.Index.CacheSize = d.Index.CacheSize
	}
	if c.Retrieval.HopLimit < 1 {
		c.Retrieval.HopLimit = d.Retrieval.HopLimit
	}
	if c.Retrieval.Decay <= 0 || c.Retrieval.Decay >= 1 {
		c.Retrieval.Decay = d.Retrieval.Decay
	}
	if c.Retrieval.OwnershipBonus < 0 {
		c.Retrieval.OwnershipBonus = d.Retrieval.OwnershipBonus
	}
	if c.Retrieval.Cap < 1 {
		c.Retrieval.Cap = d.Retrieval.Cap
	}
	if c.AI.Provider == "" {
		c.AI.Provider = d.AI.Provider
	}
	if c.AI.MaxTokens < 0 {
		c.AI.MaxTokens = 0
	}
	if c.AI.Temperature < 0 {
		c.AI.Temperature = 0
	}
}
