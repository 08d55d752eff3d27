// Package config loads the service configuration from a YAML file and
// CFCRM_* environment variables.
package config

// Config represents the full service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	CRM       CRMConfig       `yaml:"crm" mapstructure:"crm"`
	Site      SiteConfig      `yaml:"site" mapstructure:"site"`
	Transient TransientConfig `yaml:"transient" mapstructure:"transient"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // logrus level name
	Format string `yaml:"format" mapstructure:"format"` // "text" or "json"
}

// CRMConfig configures the CRM gateway
type CRMConfig struct {
	// Backend is "rest" for a live CRM or "memory" for the in-process fake
	Backend string `yaml:"backend" mapstructure:"backend"`
	URL     string `yaml:"url" mapstructure:"url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	SiteKey string `yaml:"site_key" mapstructure:"site_key"`
	// BaseURL is the public CRM URL used in generated links
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SiteConfig holds settings of the hosting site
type SiteConfig struct {
	Timezone      string `yaml:"timezone" mapstructure:"timezone"`
	Locale        string `yaml:"locale" mapstructure:"locale"`
	DomainGroupID int    `yaml:"domain_group_id" mapstructure:"domain_group_id"`
}

// TransientConfig configures the contact-link store
type TransientConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path" mapstructure:"path"`
	// TTLMinutes is how long an idle contact-link record is kept
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}
