package config

// ServerConfig controls the bridge HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// AccessKey (or its bcrypt AccessKeyHash) gates the WebSocket
	// endpoint. When neither is set, only loopback use is expected.
	AccessKey     string `yaml:"access_key"`
	AccessKeyHash string `yaml:"access_key_hash"`
}

// LoggingConfig controls logrus setup.
type LoggingConfig struct {
	Debug   bool   `yaml:"debug"`
	LogFile string `yaml:"log_file"`
}

// PortalConfig tunes the portal transport and client.
type PortalConfig struct {
	OnlineURL   string `yaml:"online_url"`
	LocationURL string `yaml:"location_url"`
	ProxyURL    string `yaml:"proxy_url"`
	// RatePerSecond caps outgoing portal requests; zero disables the
	// limiter.
	RatePerSecond   float64 `yaml:"rate_per_second"`
	PageSize        int     `yaml:"page_size"`
	EnrichBatchSize int     `yaml:"enrich_batch_size"`
}

// StorageConfig locates the on-disk registries.
type StorageConfig struct {
	EnvironmentsFile string `yaml:"environments_file"`
	TokenDir         string `yaml:"token_dir"`
}

// Config is the root configuration document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Portal  PortalConfig  `yaml:"portal"`
	Storage StorageConfig `yaml:"storage"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8317,
		},
		Portal: PortalConfig{
			OnlineURL:       "https://www.arcgis.com/sharing/rest",
			LocationURL:     "https://location.arcgis.com/sharing/rest",
			PageSize:        100,
			EnrichBatchSize: 6,
		},
		Storage: StorageConfig{
			EnvironmentsFile: "environments.yaml",
			TokenDir:         "tokens",
		},
	}
}
