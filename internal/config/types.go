package config

// Config is the root configuration for chatvault.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Autosave AutosaveConfig `yaml:"autosave,omitempty"`
	TitleGen TitleGenConfig `yaml:"titleGen,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP/WebSocket history server.
type ServerConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// StorageConfig selects the durable store behind the session repository.
type StorageConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "memory"
	Path   string `yaml:"path,omitempty"`   // sqlite file; defaults to <base>/data/chatvault.db
}

// AutosaveConfig tunes the autosave coordinator's timers.
type AutosaveConfig struct {
	DebounceMs   int `yaml:"debounceMs,omitempty"`
	RetryDelayMs int `yaml:"retryDelayMs,omitempty"`
}

// TitleGenConfig configures the external title-generation collaborator.
// An empty provider disables it; titles then fall back to derivation from
// the first user turn.
type TitleGenConfig struct {
	Provider string `yaml:"provider,omitempty"` // "" | "http" | "openai"
	Endpoint string `yaml:"endpoint,omitempty"` // http provider
	APIKey   string `yaml:"apiKey,omitempty"`   // openai provider; supports ${ENV_VAR}
	BaseURL  string `yaml:"baseUrl,omitempty"`  // openai-compatible endpoint override
	Model    string `yaml:"model,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	Style string `yaml:"style,omitempty"` // "pretty" | "json"
}
