package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		CRM: CRMConfig{
			Backend: BackendMemory,
		},
		Site: SiteConfig{
			Timezone: "UTC",
			Locale:   "en_US",
		},
		Transient: TransientConfig{
			Driver:     DriverMemory,
			Path:       "~/.cfcrm/transient.db",
			TTLMinutes: 60,
		},
	}
}

// WriteDefault writes the default configuration to path. An existing file
// is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	header := "# cfcrm configuration\n# Every key can be overridden with CFCRM_<SECTION>_<KEY>, e.g. CFCRM_CRM_API_KEY.\n"
	return os.WriteFile(path, append([]byte(header), data...), 0o644)
}
