package store

// Config selects and configures a store backend.
type Config struct {
	Type string `toml:"type" yaml:"type" json:"type" mapstructure:"type"` // "sqlite", "postgresql" or "memory"

	// SQLite specific
	Path string `toml:"path,omitempty" yaml:"path,omitempty" json:"path,omitempty" mapstructure:"path"`

	// PostgreSQL specific
	DSN string `toml:"dsn,omitempty" yaml:"dsn,omitempty" json:"dsn,omitempty" mapstructure:"dsn"`
}
