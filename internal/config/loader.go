package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "KITMANUAL"

// Load reads configuration from file and environment.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// CLI flags are applied by the caller after Load, followed by Validate.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("kitmanual")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".kitmanual"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides bind to every key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.listing_path", cfg.Site.ListingPath)
	v.SetDefault("site.detail_path", cfg.Site.DetailPath)
	v.SetDefault("site.pdf_path", cfg.Site.PDFPath)
	v.SetDefault("site.selectors.item", cfg.Site.Selectors.Item)
	v.SetDefault("site.selectors.link", cfg.Site.Selectors.Link)
	v.SetDefault("site.selectors.name_native", cfg.Site.Selectors.NameNative)
	v.SetDefault("site.selectors.name_foreign", cfg.Site.Selectors.NameForeign)
	v.SetDefault("site.selectors.release", cfg.Site.Selectors.Release)
	v.SetDefault("site.selectors.image", cfg.Site.Selectors.Image)
	v.SetDefault("site.selectors.pager", cfg.Site.Selectors.Pager)

	v.SetDefault("crawl.max_pages", cfg.Crawl.MaxPages)
	v.SetDefault("crawl.concurrency", cfg.Crawl.Concurrency)
	v.SetDefault("crawl.delay", cfg.Crawl.Delay)
	v.SetDefault("crawl.request_timeout", cfg.Crawl.RequestTimeout)
	v.SetDefault("crawl.max_retries", cfg.Crawl.MaxRetries)
	v.SetDefault("crawl.retry_delay", cfg.Crawl.RetryDelay)
	v.SetDefault("crawl.user_agent", cfg.Crawl.UserAgent)
	v.SetDefault("crawl.max_body_size", cfg.Crawl.MaxBodySize)

	v.SetDefault("download.storage_root", cfg.Download.StorageRoot)
	v.SetDefault("download.subdir", cfg.Download.Subdir)
	v.SetDefault("download.concurrency", cfg.Download.Concurrency)
	v.SetDefault("download.only_missing", cfg.Download.OnlyMissing)
	v.SetDefault("download.limit", cfg.Download.Limit)
	v.SetDefault("download.grades", cfg.Download.Grades)
	v.SetDefault("download.ids", cfg.Download.IDs)
	v.SetDefault("download.validate_pdf", cfg.Download.ValidatePDF)
	v.SetDefault("download.timeout", cfg.Download.Timeout)

	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("database.mongo_database", cfg.Database.MongoDatabase)
	v.SetDefault("database.mongo_collection", cfg.Database.MongoCollection)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)

	v.SetDefault("upload.bucket", cfg.Upload.Bucket)
	v.SetDefault("upload.prefix", cfg.Upload.Prefix)
	v.SetDefault("upload.public_base_url", cfg.Upload.PublicBaseURL)
	v.SetDefault("upload.concurrency", cfg.Upload.Concurrency)

	v.SetDefault("api.addr", cfg.API.Addr)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
