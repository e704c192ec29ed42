package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	envPrefix   = "ACSTDL_"
	envFileName = ".env"
	etcDir      = "/etc"
)

type TaggingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Album       bool   `yaml:"album"`
	Track       bool   `yaml:"track"`
	ReleaseDate bool   `yaml:"release_date"`
	DateFormat  string `yaml:"date_format"`
}

type Config struct {
	URLs                 URLsConfig    `yaml:"urls"`
	OutputDirectory      string        `yaml:"output_directory"`
	Timeout              int           `yaml:"timeout"`              // Seconds, feed page and mp3 downloads
	HeadRequestTimeout   int           `yaml:"head_request_timeout"` // Seconds, metadata probes
	VerifySSL            bool          `yaml:"verify_ssl"`
	MaxMP3Links          int           `yaml:"max_mp3_links"` // 0 means no limit
	MaxConcurrentDomains int           `yaml:"max_concurrent_domains"`
	DownloadWorkers      int           `yaml:"download_workers"`
	ProbeRatePerDomain   float64       `yaml:"probe_rate_per_domain"` // Requests per second, 0 means no limit
	DownloadMP3Files     bool          `yaml:"download_mp3_files"`
	ReverseSelection     bool          `yaml:"reverse_selection"`
	UserAgent            string        `yaml:"user_agent"`
	Tagging              TaggingConfig `yaml:"tagging"`
	SaveLinksReport      bool          `yaml:"save_links_report"`
	FeedDescriptionFile  string        `yaml:"feed_description_file"`
	LogLevel             string        `yaml:"log_level"`
	Listen               string        `yaml:"listen"`
	RedisURL             string        `yaml:"redis_url"`
	RunTTL               int           `yaml:"run_ttl"` // Hours
}

func (c *Config) SetDefaults() {
	c.OutputDirectory = "~/podcasts"
	c.Timeout = 30
	c.HeadRequestTimeout = 10
	c.VerifySSL = true
	c.MaxConcurrentDomains = 4
	c.DownloadWorkers = 2
	c.ReverseSelection = true
	c.UserAgent = DefaultUserAgent
	c.Tagging = TaggingConfig{
		Album:       true,
		Track:       true,
		ReleaseDate: true,
		DateFormat:  "2006-01-02",
	}
	c.SaveLinksReport = true
	c.FeedDescriptionFile = "feed.md"
	c.LogLevel = LogLevelInfo
	c.Listen = ":8080"
	c.RunTTL = 7 * 24
}

// Load reads the config file, the optional .env beside it and ACSTDL_* environment overrides.
// A relative path that does not exist is looked up in /etc as well.
func Load(path string) (*Config, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(filepath.Join(filepath.Dir(path), envFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	return Parse(data)
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Parse decodes YAML (or JSON, which is a subset) config content.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolvePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if !filepath.IsAbs(path) {
		etcPath := filepath.Join(etcDir, filepath.Base(path))
		if _, err := os.Stat(etcPath); err == nil {
			return etcPath, nil
		}
	}

	return "", fmt.Errorf("config file %s not found", path)
}

func (c *Config) applyEnv() error {
	if v, ok := lookupEnv("OUTPUT_DIRECTORY"); ok {
		c.OutputDirectory = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookupEnv("LISTEN"); ok {
		c.Listen = v
	}
	if v, ok := lookupEnv("REDIS_URL"); ok {
		c.RedisURL = v
	}
	if v, ok := lookupEnv("MAX_MP3_LINKS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sMAX_MP3_LINKS: %w", envPrefix, err)
		}
		c.MaxMP3Links = n
	}
	if v, ok := lookupEnv("DOWNLOAD_MP3_FILES"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sDOWNLOAD_MP3_FILES: %w", envPrefix, err)
		}
		c.DownloadMP3Files = b
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}

	return strings.TrimSpace(v), true
}

func (c *Config) normalize() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", c.Timeout)
	}

	// Probes must never outlast downloads.
	if c.HeadRequestTimeout <= 0 || c.HeadRequestTimeout >= c.Timeout {
		c.HeadRequestTimeout = max(1, c.Timeout/3)
	}

	if c.MaxMP3Links < 0 {
		c.MaxMP3Links = 0
	}
	if c.MaxConcurrentDomains <= 0 {
		c.MaxConcurrentDomains = 1
	}
	if c.DownloadWorkers <= 0 {
		c.DownloadWorkers = 1
	}

	dir, err := expandHome(c.OutputDirectory)
	if err != nil {
		return err
	}
	c.OutputDirectory = dir

	return nil
}

func expandHome(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("output directory is empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot expand home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	return filepath.Abs(path)
}

func (c *Config) Feeds() []FeedURL {
	return c.URLs.Entries
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.HeadRequestTimeout) * time.Second
}

func (c *Config) RunTTLDuration() time.Duration {
	return time.Duration(c.RunTTL) * time.Hour
}

type HTTPConfig struct {
	Timeout       time.Duration
	ProbeTimeout  time.Duration
	VerifyTLS     bool
	UserAgent     string
	RatePerDomain float64
}

func (c *Config) HTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		Timeout:       c.RequestTimeout(),
		ProbeTimeout:  c.ProbeTimeout(),
		VerifyTLS:     c.VerifySSL,
		UserAgent:     c.UserAgent,
		RatePerDomain: c.ProbeRatePerDomain,
	}
}

type SelectorConfig struct {
	MaxMP3Links          int
	MaxConcurrentDomains int
	Reverse              bool
}

func (c *Config) SelectorConfig() *SelectorConfig {
	return &SelectorConfig{
		MaxMP3Links:          c.MaxMP3Links,
		MaxConcurrentDomains: c.MaxConcurrentDomains,
		Reverse:              c.ReverseSelection,
	}
}

type DownloadConfig struct {
	Workers int
	Timeout time.Duration
	Tagging TaggingConfig
}

func (c *Config) DownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		Workers: c.DownloadWorkers,
		Timeout: c.RequestTimeout(),
		Tagging: c.Tagging,
	}
}

type FSAdapterConfig struct {
	WorkDir      string
	DescFileName string
}

func (c *Config) FSAdapterConfig() *FSAdapterConfig {
	return &FSAdapterConfig{
		WorkDir:      c.OutputDirectory,
		DescFileName: c.FeedDescriptionFile,
	}
}
