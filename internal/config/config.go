package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port string
	}
	Redis struct {
		URL string
	}
	Auth struct {
		BaseURL string
	}
	Groq struct {
		APIKey  string
		BaseURL string
	}
	Agent struct {
		APIKey  string
		BaseURL string
	}
	Synthesis struct {
		Model string
	}
	RateLimit struct {
		MaxRequests int
		Window      time.Duration
	}
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	var config Config

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("redis.url", "redis://localhost:6379")
	viper.SetDefault("auth.base_url", "http://localhost:8081")
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("synthesis.model", "llama-3.3-70b-versatile")
	viper.SetDefault("ratelimit.max_requests", 15)
	viper.SetDefault("ratelimit.window", "60s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	config.Server.Port = viper.GetString("server.port")
	config.Redis.URL = viper.GetString("redis.url")
	config.Auth.BaseURL = viper.GetString("auth.base_url")
	config.Groq.BaseURL = viper.GetString("groq.base_url")
	config.Synthesis.Model = viper.GetString("synthesis.model")
	config.RateLimit.MaxRequests = viper.GetInt("ratelimit.max_requests")
	config.RateLimit.Window = viper.GetDuration("ratelimit.window")

	config.Groq.APIKey = os.Getenv("GROQ_API_KEY")
	config.Agent.APIKey = os.Getenv("AGENT_API_KEY")
	config.Agent.BaseURL = os.Getenv("AGENT_BASE_URL")

	return &config, nil
}

// ValidateGroq checks that the fast provider can be reached
func (c *Config) ValidateGroq() error {
	if c.Groq.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if c.Groq.BaseURL == "" {
		return fmt.Errorf("groq.base_url is required")
	}
	return nil
}

// AgentConfigured reports whether the optional agent provider is usable
func (c *Config) AgentConfigured() bool {
	return c.Agent.APIKey != "" && c.Agent.BaseURL != ""
}
