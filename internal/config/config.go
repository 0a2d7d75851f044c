package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for kitmanual.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"     yaml:"site"`
	Crawl    CrawlConfig    `mapstructure:"crawl"    yaml:"crawl"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Upload   UploadConfig   `mapstructure:"upload"   yaml:"upload"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// SiteConfig describes the catalog site's URL layout and listing markup.
type SiteConfig struct {
	BaseURL     string          `mapstructure:"base_url"     yaml:"base_url"     validate:"required,url"`
	ListingPath string          `mapstructure:"listing_path" yaml:"listing_path" validate:"required"`
	DetailPath  string          `mapstructure:"detail_path"  yaml:"detail_path"  validate:"required,contains={id}"`
	PDFPath     string          `mapstructure:"pdf_path"     yaml:"pdf_path"     validate:"required,contains={id}"`
	Selectors   SelectorsConfig `mapstructure:"selectors"    yaml:"selectors"`
}

// SelectorsConfig holds the CSS/XPath expressions used on listing pages.
type SelectorsConfig struct {
	Item        string `mapstructure:"item"         yaml:"item"         validate:"required"`
	Link        string `mapstructure:"link"         yaml:"link"         validate:"required"`
	NameNative  string `mapstructure:"name_native"  yaml:"name_native"`
	NameForeign string `mapstructure:"name_foreign" yaml:"name_foreign"`
	Release     string `mapstructure:"release"      yaml:"release"`
	Image       string `mapstructure:"image"        yaml:"image"`
	Pager       string `mapstructure:"pager"        yaml:"pager"` // XPath
}

// CrawlConfig controls listing traversal and the fetch client.
type CrawlConfig struct {
	MaxPages       int           `mapstructure:"max_pages"       yaml:"max_pages"       validate:"gte=1"`
	Concurrency    int           `mapstructure:"concurrency"     yaml:"concurrency"     validate:"gte=1,lte=64"`
	Delay          time.Duration `mapstructure:"delay"           yaml:"delay"           validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries"     yaml:"max_retries"     validate:"gte=0,lte=10"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"     validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"   validate:"gt=0"`
}

// DownloadConfig controls the PDF download orchestrator.
type DownloadConfig struct {
	StorageRoot string        `mapstructure:"storage_root" yaml:"storage_root" validate:"required"`
	Subdir      string        `mapstructure:"subdir"       yaml:"subdir"`
	Concurrency int           `mapstructure:"concurrency"  yaml:"concurrency"  validate:"gte=1,lte=32"`
	OnlyMissing bool          `mapstructure:"only_missing" yaml:"only_missing"`
	Limit       int           `mapstructure:"limit"        yaml:"limit"        validate:"gte=0"`
	Grades      []string      `mapstructure:"grades"       yaml:"grades"`
	IDs         []int64       `mapstructure:"ids"          yaml:"ids"`
	ValidatePDF bool          `mapstructure:"validate_pdf" yaml:"validate_pdf"`
	Timeout     time.Duration `mapstructure:"timeout"      yaml:"timeout"      validate:"gt=0"`
}

// DatabaseConfig selects and configures the catalog store.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"           yaml:"driver"           validate:"oneof=postgres sqlite mongodb"`
	DSN             string `mapstructure:"dsn"              yaml:"dsn"              validate:"required"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"   yaml:"max_open_conns"   validate:"gte=0"`
}

// UploadConfig controls the object-storage upload sink.
type UploadConfig struct {
	Bucket        string `mapstructure:"bucket"          yaml:"bucket"`
	Prefix        string `mapstructure:"prefix"          yaml:"prefix"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
	Concurrency   int    `mapstructure:"concurrency"     yaml:"concurrency" validate:"gte=1,lte=32"`
}

// APIConfig controls the read-only lookup API.
type APIConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:     "https://manual.bandai-hobby.net",
			ListingPath: "/",
			DetailPath:  "/menus/detail/{id}",
			PDFPath:     "/pdf/{id}.pdf",
			Selectors: SelectorsConfig{
				Item:        "ul.manual-list > li",
				Link:        "a[href*='/menus/detail/']",
				NameNative:  ".name-ja",
				NameForeign: ".name-en",
				Release:     ".release",
				Image:       "img",
				Pager:       "//ul[contains(@class,'pagination')]//a[contains(@href,'page=')]",
			},
		},
		Crawl: CrawlConfig{
			MaxPages:       300,
			Concurrency:    4,
			Delay:          500 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			RetryDelay:     time.Second,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
		},
		Download: DownloadConfig{
			StorageRoot: "./data",
			Subdir:      "manuals",
			Concurrency: 3,
			OnlyMissing: true,
			ValidatePDF: true,
			Timeout:     5 * time.Minute,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "./data/kitmanual.db",
			MongoDatabase:   "kitmanual",
			MongoCollection: "manuals",
			MaxOpenConns:    4,
		},
		Upload: UploadConfig{
			Prefix:      "manuals",
			Concurrency: 4,
		},
		API: APIConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
