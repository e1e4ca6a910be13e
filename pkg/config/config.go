// Package config models the data center configuration document: the set of
// declared data sources, the per-source server bindings, and the opaque
// management blocks that other layers consume as-is.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Data source type tags. The backend factory dispatches strictly on these.
const (
	TypeRelational = "relational"
	TypeDocument   = "document"
	TypeKeyValue   = "keyvalue"
	TypeSearch     = "search"
	TypeREST       = "rest"
)

// Relational driver names accepted in connection.driver.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Endpoint declares one callable REST endpoint for a rest-type source.
type Endpoint struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Method string `yaml:"method,omitempty"`
}

// DataSource is one configured backend. Connection carries the
// backend-specific fields (host, port, credentials, path, base_url);
// Settings carries tunable knobs the variants interpret themselves.
type DataSource struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Enabled     bool              `yaml:"enabled"`
	Description string            `yaml:"description,omitempty"`
	Connection  map[string]any    `yaml:"connection"`
	Settings    map[string]any    `yaml:"settings,omitempty"`
	Tables      []string          `yaml:"tables,omitempty"`
	Collections []string          `yaml:"collections,omitempty"`
	Indices     []string          `yaml:"indices,omitempty"`
	Endpoints   []Endpoint        `yaml:"endpoints,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// ServerBinding maps a data source to the port its standalone server listens on.
type ServerBinding struct {
	DataSource string `yaml:"datasource"`
	Port       int    `yaml:"port"`
	LogLevel   string `yaml:"log_level,omitempty"`
}

// Config is the full configuration document. Management, Security, Logging and
// Monitoring are passed through unvalidated.
type Config struct {
	DataCenter  map[string]string `yaml:"datacenter,omitempty"`
	DataSources []DataSource      `yaml:"datasources"`
	Servers     []ServerBinding   `yaml:"servers,omitempty"`
	Management  map[string]any    `yaml:"management,omitempty"`
	Security    map[string]any    `yaml:"security,omitempty"`
	Logging     map[string]any    `yaml:"logging,omitempty"`
	Monitoring  map[string]any    `yaml:"monitoring,omitempty"`
}

// Load reads and decodes the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a configuration document from raw YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	return &cfg, nil
}

// requiredConnectionFields lists the connection keys each type tag mandates.
// Relational sources additionally need per-driver fields, checked separately.
var requiredConnectionFields = map[string][]string{
	TypeRelational: {"driver"},
	TypeDocument:   {"host", "port", "database"},
	TypeKeyValue:   {"host", "port"},
	TypeSearch:     {"host", "port"},
	TypeREST:       {"base_url"},
}

var relationalDriverFields = map[string][]string{
	DriverPostgres: {"host", "port", "database", "username", "password"},
	DriverMySQL:    {"host", "port", "database", "username", "password"},
	DriverSQLite:   {"path"},
}

// Validate checks the whole document and returns every problem found.
// A non-empty result is fatal to startup; nothing should be spawned after it.
func (c *Config) Validate() []error {
	var errs []error

	names := make(map[string]bool)
	for _, ds := range c.DataSources {
		if names[ds.Name] {
			errs = append(errs, fmt.Errorf("duplicate data source name %q", ds.Name))
		}
		names[ds.Name] = true

		required, known := requiredConnectionFields[ds.Type]
		if !known {
			errs = append(errs, fmt.Errorf("data source %q has unknown type %q", ds.Name, ds.Type))
			continue
		}
		if len(ds.Connection) == 0 {
			errs = append(errs, fmt.Errorf("data source %q has no connection block", ds.Name))
			continue
		}
		for _, field := range required {
			if _, ok := ds.Connection[field]; !ok {
				errs = append(errs, fmt.Errorf("data source %q missing connection field %q", ds.Name, field))
			}
		}
		if ds.Type == TypeRelational {
			driver := ds.ConnString("driver")
			fields, ok := relationalDriverFields[driver]
			if !ok {
				if driver != "" {
					errs = append(errs, fmt.Errorf("data source %q has unknown relational driver %q", ds.Name, driver))
				}
				continue
			}
			for _, field := range fields {
				if _, ok := ds.Connection[field]; !ok {
					errs = append(errs, fmt.Errorf("data source %q missing connection field %q", ds.Name, field))
				}
			}
		}
	}

	ports := make(map[int]string)
	for _, srv := range c.Servers {
		if other, taken := ports[srv.Port]; taken {
			errs = append(errs, fmt.Errorf("server port %d conflicts between %q and %q", srv.Port, other, srv.DataSource))
		}
		ports[srv.Port] = srv.DataSource
		if !names[srv.DataSource] {
			errs = append(errs, fmt.Errorf("server binding references unknown data source %q", srv.DataSource))
		}
	}

	return errs
}

// DataSource returns the configuration entry for name.
func (c *Config) DataSource(name string) (*DataSource, bool) {
	for i := range c.DataSources {
		if c.DataSources[i].Name == name {
			return &c.DataSources[i], true
		}
	}
	return nil, false
}

// EnabledDataSources returns the entries with enabled == true, in declaration order.
func (c *Config) EnabledDataSources() []DataSource {
	var out []DataSource
	for _, ds := range c.DataSources {
		if ds.Enabled {
			out = append(out, ds)
		}
	}
	return out
}

// ServerFor returns the server binding declared for the named data source.
func (c *Config) ServerFor(datasource string) (*ServerBinding, bool) {
	for i := range c.Servers {
		if c.Servers[i].DataSource == datasource {
			return &c.Servers[i], true
		}
	}
	return nil, false
}

// ConnectionString builds the native DSN for the named data source.
func (c *Config) ConnectionString(name string) (string, error) {
	ds, ok := c.DataSource(name)
	if !ok {
		return "", fmt.Errorf("config: unknown data source %q", name)
	}
	return ds.ConnectionString()
}

// ConnectionString builds the native DSN for this data source.
func (ds *DataSource) ConnectionString() (string, error) {
	host := ds.ConnString("host")
	port := ds.ConnInt("port")
	user := ds.ConnString("username")
	pass := ds.ConnString("password")
	db := ds.ConnString("database")

	switch ds.Type {
	case TypeRelational:
		switch ds.ConnString("driver") {
		case DriverPostgres:
			return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", user, pass, host, port, db), nil
		case DriverMySQL:
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", user, pass, host, port, db), nil
		case DriverSQLite:
			return ds.ConnString("path"), nil
		default:
			return "", fmt.Errorf("config: unknown relational driver %q for %q", ds.ConnString("driver"), ds.Name)
		}
	case TypeDocument:
		auth := ""
		if user != "" {
			auth = fmt.Sprintf("%s:%s@", user, pass)
		}
		return fmt.Sprintf("mongodb://%s%s:%d/%s", auth, host, port, db), nil
	case TypeKeyValue:
		auth := ""
		if pass != "" {
			auth = fmt.Sprintf(":%s@", pass)
		}
		return fmt.Sprintf("redis://%s%s:%d/%d", auth, host, port, ds.ConnInt("db")), nil
	case TypeSearch:
		return fmt.Sprintf("http://%s:%d", host, port), nil
	case TypeREST:
		return ds.ConnString("base_url"), nil
	default:
		return "", fmt.Errorf("config: no connection string for type %q", ds.Type)
	}
}

// ConnString returns the string value of a connection field, or "".
func (ds *DataSource) ConnString(key string) string {
	v, ok := ds.Connection[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ConnInt returns the integer value of a connection field, or 0.
func (ds *DataSource) ConnInt(key string) int {
	switch v := ds.Connection[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// SettingInt returns an integer settings knob, or def when unset.
func (ds *DataSource) SettingInt(key string, def int) int {
	switch v := ds.Settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

// EnvironmentVariables flattens the enabled sources' connection and settings
// maps into NAME_FIELD=value pairs for handing to spawned processes.
func (c *Config) EnvironmentVariables() map[string]string {
	env := make(map[string]string)
	for _, ds := range c.DataSources {
		if !ds.Enabled {
			continue
		}
		prefix := strings.ToUpper(ds.Name) + "_"
		for k, v := range ds.Connection {
			env[prefix+strings.ToUpper(k)] = fmt.Sprintf("%v", v)
		}
		for k, v := range ds.Settings {
			env[prefix+"SETTINGS_"+strings.ToUpper(k)] = fmt.Sprintf("%v", v)
		}
	}
	return env
}

// Export writes the configuration back out as YAML. A document that validates
// cleanly round-trips through Export and Parse unchanged.
func (c *Config) Export(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	return enc.Close()
}
