package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default Cloudflare GraphQL endpoints per CMB region. The eu/us hosts keep
// analytics queries inside the corresponding metadata boundary.
const (
	DefaultAPIURL = "https://api.cloudflare.com/client/v4/graphql"
	euAPIURL      = "https://eu.api.cloudflare.com/client/v4/graphql"
	usAPIURL      = "https://us.api.cloudflare.com/client/v4/graphql"
)

// CmbRegion is a Cloudflare Metadata Boundary region designator.
type CmbRegion string

const (
	RegionGlobal CmbRegion = "global"
	RegionEU     CmbRegion = "eu"
	RegionUS     CmbRegion = "us"
)

var zoneIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ConfigError is fatal: the process must not reach the poll loop with one.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Config holds all validated settings consumed by the exporter core.
type Config struct {
	Listen      string
	MetricsPath string

	APIToken string
	APIURL   string
	Region   CmbRegion

	ScrapeInterval time.Duration
	MaxWorkers     int

	Zones           []string
	ExcludeZones    []string
	ExcludeDatasets []string

	LogLevel string
}

// FromViper builds a Config from the viper-bound flags/env vars and
// validates it. Any violation returns a *ConfigError.
func FromViper() (*Config, error) {
	cfg := &Config{
		Listen:          viper.GetString("listen"),
		MetricsPath:     viper.GetString("metrics_path"),
		APIToken:        viper.GetString("cf_api_token"),
		APIURL:          viper.GetString("cf_api_url"),
		Region:          CmbRegion(strings.ToLower(viper.GetString("cmb_region"))),
		ScrapeInterval:  time.Duration(viper.GetInt("scrape_interval")) * time.Second,
		MaxWorkers:      viper.GetInt("max_workers"),
		Zones:           splitList(viper.GetString("cf_zones")),
		ExcludeZones:    splitList(viper.GetString("cf_exclude_zones")),
		ExcludeDatasets: splitList(viper.GetString("cf_exclude_datasets")),
		LogLevel:        viper.GetString("log_level"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the startup contract. It reports the first violation.
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return &ConfigError{Field: "cf_api_token", Reason: "must be set"}
	}

	secs := int(c.ScrapeInterval / time.Second)
	if secs < 60 || secs > 300 {
		return &ConfigError{Field: "scrape_interval", Reason: fmt.Sprintf("%d is outside 60-300 seconds", secs)}
	}
	if secs%60 != 0 {
		return &ConfigError{Field: "scrape_interval", Reason: fmt.Sprintf("%d is not a multiple of 60", secs)}
	}

	if c.MaxWorkers < 3 || c.MaxWorkers > 10 {
		return &ConfigError{Field: "max_workers", Reason: fmt.Sprintf("%d is outside 3-10", c.MaxWorkers)}
	}

	switch c.Region {
	case RegionGlobal, RegionEU, RegionUS:
	default:
		return &ConfigError{Field: "cmb_region", Reason: fmt.Sprintf("%q is not one of global, eu, us", c.Region)}
	}

	for _, id := range c.Zones {
		if !zoneIDPattern.MatchString(id) {
			return &ConfigError{Field: "cf_zones", Reason: fmt.Sprintf("%q is not a 32 character hex zone ID", id)}
		}
	}
	for _, id := range c.ExcludeZones {
		if !zoneIDPattern.MatchString(id) {
			return &ConfigError{Field: "cf_exclude_zones", Reason: fmt.Sprintf("%q is not a 32 character hex zone ID", id)}
		}
	}
	return nil
}

// GraphQLEndpoint returns the analytics endpoint for the configured region.
// An explicit cf_api_url overrides region routing.
func (c *Config) GraphQLEndpoint() string {
	if c.APIURL != "" && c.APIURL != DefaultAPIURL {
		return c.APIURL
	}
	switch c.Region {
	case RegionEU:
		return euAPIURL
	case RegionUS:
		return usAPIURL
	default:
		return DefaultAPIURL
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
