package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. SCREENER_DATABASE_URL
const EnvPrefix = "SCREENER"

// DefaultConfigName is looked up in the working directory when no --config is given
const DefaultConfigName = "cv-screener"

// Config holds application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	Outlook  OutlookConfig  `mapstructure:"outlook"`
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend-url"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// DatabaseConfig selects the store. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type GmailConfig struct {
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
	RedirectURL  string `mapstructure:"redirect-url"`
	// CredentialsFile and TokenFile are used by the fetch command only.
	CredentialsFile string `mapstructure:"credentials-file"`
	TokenFile       string `mapstructure:"token-file"`
}

type OutlookConfig struct {
	ClientID     string `mapstructure:"client-id"`
	ClientSecret string `mapstructure:"client-secret"`
	RedirectURL  string `mapstructure:"redirect-url"`
	Tenant       string `mapstructure:"tenant"`
	// GraphURL overrides the Microsoft Graph endpoint
	GraphURL string `mapstructure:"graph-url"`
}

type HarvestConfig struct {
	Workers      int           `mapstructure:"workers"`
	PageSize     int64         `mapstructure:"page-size"`
	MaxPartDepth int           `mapstructure:"max-part-depth"`
	DefaultDays  int           `mapstructure:"default-days"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type ScoringConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxCVChars int           `mapstructure:"max-cv-chars"`
	Vertex     VertexConfig  `mapstructure:"vertex"`
	Gemini     APIKeyConfig  `mapstructure:"gemini"`
	OpenAI     APIKeyConfig  `mapstructure:"openai"`
}

type VertexConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
}

type APIKeyConfig struct {
	APIKey string `mapstructure:"api-key"`
	// BaseURL overrides the provider endpoint, e.g. for a proxy
	BaseURL string `mapstructure:"base-url"`
}

// Scoring providers
const (
	ProviderVertex = "vertex"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.frontend-url", "http://localhost:5000")
	v.SetDefault("gmail.redirect-url", "http://localhost:8080/api/auth/callback/gmail")
	v.SetDefault("outlook.redirect-url", "http://localhost:8080/api/auth/callback/outlook")
	v.SetDefault("outlook.tenant", "common")
	v.SetDefault("gmail.credentials-file", "credentials.json")
	v.SetDefault("gmail.token-file", "token.json")
	v.SetDefault("harvest.workers", 4)
	v.SetDefault("harvest.page-size", 50)
	v.SetDefault("harvest.max-part-depth", 16)
	v.SetDefault("harvest.default-days", 30)
	v.SetDefault("harvest.timeout", 5*time.Minute)
	v.SetDefault("scoring.provider", ProviderVertex)
	v.SetDefault("scoring.timeout", 60*time.Second)
	v.SetDefault("scoring.max-cv-chars", 8000)
	v.SetDefault("scoring.vertex.location", "us-central1")
}

// New returns a viper instance with defaults and environment bindings applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Well-known variable names used by the hosting environment.
	bindings := map[string]string{
		"server.port":             "PORT",
		"server.frontend-url":     "FRONTEND_URL",
		"database.url":            "DATABASE_URL",
		"gmail.client-id":         "GOOGLE_CLIENT_ID",
		"gmail.client-secret":     "GOOGLE_CLIENT_SECRET",
		"gmail.redirect-url":      "GMAIL_REDIRECT_URI",
		"outlook.client-id":       "MICROSOFT_CLIENT_ID",
		"outlook.client-secret":   "MICROSOFT_CLIENT_SECRET",
		"outlook.redirect-url":    "MICROSOFT_REDIRECT_URI",
		"scoring.vertex.project":  "GOOGLE_CLOUD_PROJECT",
		"scoring.vertex.location": "GOOGLE_CLOUD_LOCATION",
		"scoring.gemini.api-key":  "GEMINI_API_KEY",
		"scoring.openai.api-key":  "OPENAI_API_KEY",
	}
	for key, env := range bindings {
		// BindEnv only fails when no key is given.
		_ = v.BindEnv(key, EnvPrefix+"_"+envName(key), env)
	}

	return v
}

func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Load reads the configuration file (when present) and the environment.
// A missing file is not an error when path is empty.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.ValidateHarvest(); err != nil {
		return err
	}
	return c.ValidateScoring()
}

// ValidateHarvest checks the settings needed to harvest CVs
func (c *Config) ValidateHarvest() error {
	if c.Harvest.Workers <= 0 {
		return fmt.Errorf("harvest.workers must be positive")
	}

	if c.Harvest.PageSize <= 0 || c.Harvest.PageSize > 500 {
		return fmt.Errorf("harvest.page-size must be between 1 and 500")
	}

	if c.Harvest.MaxPartDepth <= 0 {
		return fmt.Errorf("harvest.max-part-depth must be positive")
	}

	return nil
}

// ValidateScoring checks the settings of the selected scoring provider
func (c *Config) ValidateScoring() error {
	if c.Scoring.MaxCVChars <= 0 {
		return fmt.Errorf("scoring.max-cv-chars must be positive")
	}

	switch c.Scoring.Provider {
	case ProviderVertex:
		if c.Scoring.Vertex.Project == "" {
			return fmt.Errorf("scoring.vertex.project is required")
		}
		if c.Scoring.Vertex.Location == "" {
			return fmt.Errorf("scoring.vertex.location is required")
		}
	case ProviderGemini:
		if c.Scoring.Gemini.APIKey == "" {
			return fmt.Errorf("scoring.gemini.api-key is required")
		}
	case ProviderOpenAI:
		if c.Scoring.OpenAI.APIKey == "" {
			return fmt.Errorf("scoring.openai.api-key is required")
		}
	default:
		return fmt.Errorf("unknown scoring.provider %q", c.Scoring.Provider)
	}

	return nil
}

// GmailEnabled reports whether the web OAuth flow can be offered
func (c *Config) GmailEnabled() bool {
	return c.Gmail.ClientID != "" && c.Gmail.ClientSecret != ""
}

// OutlookEnabled reports whether the Microsoft consent flow can be offered
func (c *Config) OutlookEnabled() bool {
	return c.Outlook.ClientID != "" && c.Outlook.ClientSecret != ""
}
