package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Supported backends and drivers
const (
	BackendREST   = "rest"
	BackendMemory = "memory"
	DriverMemory  = "memory"
	DriverSQLite  = "sqlite"
)

// DefaultFile is read from the working directory when no path is given
const DefaultFile = "cfcrm.yaml"

// EnvPrefix prefixes every environment override
const EnvPrefix = "CFCRM"

// Load reads the configuration from path, or from DefaultFile when path is
// empty and that file exists, and applies environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("crm.backend", d.CRM.Backend)
	v.SetDefault("crm.url", d.CRM.URL)
	v.SetDefault("crm.api_key", d.CRM.APIKey)
	v.SetDefault("crm.site_key", d.CRM.SiteKey)
	v.SetDefault("crm.base_url", d.CRM.BaseURL)
	v.SetDefault("site.timezone", d.Site.Timezone)
	v.SetDefault("site.locale", d.Site.Locale)
	v.SetDefault("site.domain_group_id", d.Site.DomainGroupID)
	v.SetDefault("transient.driver", d.Transient.Driver)
	v.SetDefault("transient.path", d.Transient.Path)
	v.SetDefault("transient.ttl_minutes", d.Transient.TTLMinutes)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch c.CRM.Backend {
	case BackendMemory:
	case BackendREST:
		if c.CRM.URL == "" {
			return fmt.Errorf("crm.url is required for the %s backend", BackendREST)
		}
	default:
		return fmt.Errorf("unknown crm.backend %q", c.CRM.Backend)
	}
	switch c.Transient.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("unknown transient.driver %q", c.Transient.Driver)
	}
	if _, err := c.Site.Location(); err != nil {
		return err
	}
	if _, err := c.Site.MessageLocale(); err != nil {
		return err
	}
	return nil
}

// Location returns the site's time zone
func (s SiteConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid site.timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// MessageLocale returns the site locale in the CRM's ll_CC form, e.g. "en_US"
// for "en-us". An empty locale stays empty.
func (s SiteConfig) MessageLocale() (string, error) {
	return CanonicalLocale(s.Locale)
}

// CanonicalLocale parses a BCP 47 or POSIX style locale and renders it as
// language_REGION. The region is omitted when the input names none.
func CanonicalLocale(locale string) (string, error) {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return "", nil
	}
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	base, _ := tag.Base()
	region, conf := tag.Region()
	if conf != language.Exact {
		return base.String(), nil
	}
	return base.String() + "_" + region.String(), nil
}

// TTL returns how long idle contact-link records are kept
func (t TransientConfig) TTL() time.Duration {
	if t.TTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(t.TTLMinutes) * time.Minute
}
