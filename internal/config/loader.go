package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load builds the effective configuration: defaults, overlaid by the yaml
// file at path when it exists, overlaid by PORTALKEYS_* environment
// variables. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults plus env only.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	envStr("PORTALKEYS_HOST", &cfg.Server.Host)
	envInt("PORTALKEYS_PORT", &cfg.Server.Port)
	envStr("PORTALKEYS_ACCESS_KEY", &cfg.Server.AccessKey)
	envStr("PORTALKEYS_ACCESS_KEY_HASH", &cfg.Server.AccessKeyHash)
	envBool("PORTALKEYS_DEBUG", &cfg.Logging.Debug)
	envStr("PORTALKEYS_LOG_FILE", &cfg.Logging.LogFile)
	envStr("PORTALKEYS_ONLINE_URL", &cfg.Portal.OnlineURL)
	envStr("PORTALKEYS_LOCATION_URL", &cfg.Portal.LocationURL)
	envStr("PORTALKEYS_PROXY_URL", &cfg.Portal.ProxyURL)
	envInt("PORTALKEYS_PAGE_SIZE", &cfg.Portal.PageSize)
	envStr("PORTALKEYS_ENVIRONMENTS_FILE", &cfg.Storage.EnvironmentsFile)
	envStr("PORTALKEYS_TOKEN_DIR", &cfg.Storage.TokenDir)
}

func envStr(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v, ok := os.LookupEnv(name); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
