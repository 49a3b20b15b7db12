package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the sync pipeline
type Config struct {
	// Source platform (zsxq) settings
	Zsxq ZsxqConfig `yaml:"zsxq" json:"zsxq"`

	// Destination store (Feishu Bitable) settings
	Feishu FeishuConfig `yaml:"feishu" json:"feishu"`

	// Crawl behavior and pacing
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Retry behavior for transient HTTP failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ZsxqConfig holds source-platform configuration
type ZsxqConfig struct {
	AuthFile  string        `yaml:"auth_file" json:"auth_file"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
	PageSize  int           `yaml:"page_size" json:"page_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`

	// FileURLTemplate is the endpoint used to resolve a file_id into a
	// download URL. The platform does not document it, so it stays
	// configurable. %d is replaced by the file id.
	FileURLTemplate string `yaml:"file_url_template" json:"file_url_template"`
}

// FeishuConfig holds destination-store configuration
type FeishuConfig struct {
	AppID           string        `yaml:"app_id" json:"app_id"`
	AppSecret       string        `yaml:"app_secret" json:"app_secret"`
	BitableAppToken string        `yaml:"bitable_app_token" json:"bitable_app_token"`
	TableID         string        `yaml:"table_id" json:"table_id"`
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// CrawlConfig holds crawl scope and pacing configuration
type CrawlConfig struct {
	DownloadDir string `yaml:"download_dir" json:"download_dir"`

	// MaxPages bounds how many topic pages are fetched per group.
	// 0 means a single page.
	MaxPages int `yaml:"max_pages" json:"max_pages"`

	// FloorTime stops pagination once topics older than this ISO-8601
	// timestamp are reached. Empty means no floor.
	FloorTime string `yaml:"floor_time" json:"floor_time"`

	// DedupField is the Bitable column holding the unique topic id
	DedupField string `yaml:"dedup_field" json:"dedup_field"`

	AssetPauseMin time.Duration `yaml:"asset_pause_min" json:"asset_pause_min"`
	AssetPauseMax time.Duration `yaml:"asset_pause_max" json:"asset_pause_max"`
	TopicPauseMin time.Duration `yaml:"topic_pause_min" json:"topic_pause_min"`
	TopicPauseMax time.Duration `yaml:"topic_pause_max" json:"topic_pause_max"`
}

// RetryConfig holds retry configuration
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" json:"max_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Zsxq: ZsxqConfig{
			AuthFile:        "auth.json",
			BaseURL:         "https://api.zsxq.com",
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			PageSize:        20,
			Timeout:         30 * time.Second,
			FileURLTemplate: "https://api.zsxq.com/v2/files/%d/download_url",
		},
		Feishu: FeishuConfig{
			BaseURL: "https://open.feishu.cn",
			Timeout: 60 * time.Second,
		},
		Crawl: CrawlConfig{
			DownloadDir:   "downloads",
			MaxPages:      1,
			DedupField:    "topic_id",
			AssetPauseMin: 500 * time.Millisecond,
			AssetPauseMax: 2 * time.Second,
			TopicPauseMin: 1 * time.Second,
			TopicPauseMax: 3 * time.Second,
		},
		Retry: RetryConfig{
			Enabled:     true,
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if authFile := os.Getenv("ZSXQ_AUTH_FILE"); authFile != "" {
		c.Zsxq.AuthFile = authFile
	}
	if ua := os.Getenv("ZSXQ_USER_AGENT"); ua != "" {
		c.Zsxq.UserAgent = ua
	}
	if appID := os.Getenv("FEISHU_APP_ID"); appID != "" {
		c.Feishu.AppID = appID
	}
	if secret := os.Getenv("FEISHU_APP_SECRET"); secret != "" {
		c.Feishu.AppSecret = secret
	}
	if appToken := os.Getenv("FEISHU_BITABLE_APP_TOKEN"); appToken != "" {
		c.Feishu.BitableAppToken = appToken
	}
	if tableID := os.Getenv("FEISHU_TABLE_ID"); tableID != "" {
		c.Feishu.TableID = tableID
	}
	if dir := os.Getenv("DOWNLOAD_DIR"); dir != "" {
		c.Crawl.DownloadDir = dir
	}
	if pages := os.Getenv("ZSXQSYNC_MAX_PAGES"); pages != "" {
		var val int
		fmt.Sscanf(pages, "%d", &val)
		if val > 0 {
			c.Crawl.MaxPages = val
		}
	}
	if logLevel := os.Getenv("ZSXQSYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".zsxqsync.yaml",
		".zsxqsync.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "zsxqsync", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".zsxqsync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Zsxq.AuthFile == "" {
		errs = append(errs, errors.New("zsxq auth file path is required"))
	}
	if c.Zsxq.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}

	// App id and secret are not checked here: they may still arrive
	// from the credential store after configuration loading.
	if c.Feishu.BitableAppToken == "" {
		errs = append(errs, errors.New("feishu bitable app token is required"))
	}
	if c.Feishu.TableID == "" {
		errs = append(errs, errors.New("feishu table id is required"))
	}

	if c.Crawl.DownloadDir == "" {
		errs = append(errs, errors.New("download directory is required"))
	}
	if c.Crawl.DedupField == "" {
		errs = append(errs, errors.New("dedup field is required"))
	}
	if c.Crawl.AssetPauseMax < c.Crawl.AssetPauseMin {
		errs = append(errs, errors.New("asset pause max must be >= min"))
	}
	if c.Crawl.TopicPauseMax < c.Crawl.TopicPauseMin {
		errs = append(errs, errors.New("topic pause max must be >= min"))
	}

	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("max retry attempts cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if authFile, ok := flags["auth-file"].(string); ok && authFile != "" {
		c.Zsxq.AuthFile = authFile
	}
	if dir, ok := flags["download-dir"].(string); ok && dir != "" {
		c.Crawl.DownloadDir = dir
	}
	if tableID, ok := flags["table"].(string); ok && tableID != "" {
		c.Feishu.TableID = tableID
	}
	if pages, ok := flags["max-pages"].(int); ok && pages > 0 {
		c.Crawl.MaxPages = pages
	}
	if floor, ok := flags["floor-time"].(string); ok && floor != "" {
		c.Crawl.FloorTime = floor
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".zsxqsync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
