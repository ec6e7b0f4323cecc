package core

// ConnectorConfig holds configuration for connecting to a storage backend.
// File backends use Path; database backends use the network fields.
// Backend-specific extras (delimiter, sheet_name, sslmode, ...) live in Params.
type ConnectorConfig struct {
	Type     string            `koanf:"type" json:"type" yaml:"type"`
	Path     string            `koanf:"path" json:"path,omitempty" yaml:"path,omitempty"`
	Host     string            `koanf:"host" json:"host,omitempty" yaml:"host,omitempty"`
	Port     int               `koanf:"port" json:"port,omitempty" yaml:"port,omitempty"`
	Database string            `koanf:"database" json:"database,omitempty" yaml:"database,omitempty"`
	Username string            `koanf:"username" json:"username,omitempty" yaml:"username,omitempty"`
	Password string            `koanf:"password" json:"-" yaml:"password,omitempty"`
	Schema   string            `koanf:"schema" json:"schema,omitempty" yaml:"schema,omitempty"`
	Options  map[string]string `koanf:"options" json:"options,omitempty" yaml:"options,omitempty"`
	Params   map[string]any    `koanf:"params" json:"params,omitempty" yaml:"params,omitempty"`
}

// Option returns the named option or def when it is unset.
func (c ConnectorConfig) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && v != "" {
		return v
	}
	return def
}
