package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate, trans, nil
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	validate, trans, err := newValidator()
	if err != nil {
		return err
	}

	if err := validate.Struct(cfg); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		var msgs []string
		for _, e := range validationErrors {
			msgs = append(msgs, e.Translate(trans))
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, ", "))
	}

	if err := ValidateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}

	if cfg.Database.Driver == "mongodb" {
		if cfg.Database.MongoDatabase == "" || cfg.Database.MongoCollection == "" {
			return fmt.Errorf("database.mongo_database and database.mongo_collection are required for mongodb")
		}
	}

	if strings.Contains(cfg.Download.Subdir, "..") {
		return fmt.Errorf("download.subdir must stay inside storage_root, got %q", cfg.Download.Subdir)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a URL string is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
