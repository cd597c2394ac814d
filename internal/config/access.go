package config

import "golang.org/x/crypto/bcrypt"

// CheckAccessKey verifies a candidate against the configured access
// credential: a plain key, a bcrypt hash, or both.
func CheckAccessKey(cfg *Config, candidate string) bool {
	if cfg == nil || candidate == "" {
		return false
	}
	if cfg.Server.AccessKey != "" && candidate == cfg.Server.AccessKey {
		return true
	}
	if cfg.Server.AccessKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(cfg.Server.AccessKeyHash), []byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

// AccessKeyConfigured reports whether the bridge requires authentication.
func AccessKeyConfigured(cfg *Config) bool {
	return cfg != nil && (cfg.Server.AccessKey != "" || cfg.Server.AccessKeyHash != "")
}
