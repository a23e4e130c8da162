package sql

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/sllt/kitesql/pkg/kitesql/config"
)

const (
	defaultAlias     = "default"
	defaultMySQLPort = "3306"
	defaultPGPort    = "5432"
)

var errNoConnections = errors.New("no connections configured")

// DBConfig holds everything needed to open one connection.
type DBConfig struct {
	Alias    string            `yaml:"alias"`
	Dialect  string            `yaml:"dialect"`
	HostName string            `yaml:"host"`
	Port     string            `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	Params   map[string]string `yaml:"params"`
}

// FromConfig reads a DBConfig from DB_* keys.
func FromConfig(c config.Config) *DBConfig {
	return &DBConfig{
		Alias:    c.GetOrDefault("DB_ALIAS", defaultAlias),
		Dialect:  c.GetOrDefault("DB_DIALECT", string(DialectMySQL)),
		HostName: c.Get("DB_HOST"),
		Port:     c.Get("DB_PORT"),
		User:     c.Get("DB_USER"),
		Password: c.Get("DB_PASSWORD"),
		Database: c.Get("DB_NAME"),
	}
}

type connectionsFile struct {
	Connections []*DBConfig `yaml:"connections"`
}

// LoadConnections reads a YAML file with a top level "connections" list. ${VAR} references are
// expanded from the environment before parsing.
func LoadConnections(path string) ([]*DBConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file connectionsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if len(file.Connections) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errNoConnections)
	}

	return file.Connections, nil
}

// DSN builds the driver data source name for the configured dialect.
func (c *DBConfig) DSN() (string, error) {
	dialect, err := ParseDialect(c.Dialect)
	if err != nil {
		return "", err
	}

	switch dialect {
	case DialectPostgres:
		return c.postgresDSN(), nil
	case DialectSQLite:
		return c.sqliteDSN(), nil
	default:
		return c.mysqlDSN(), nil
	}
}

func (c *DBConfig) mysqlDSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.HostName, orDefault(c.Port, defaultMySQLPort))
	cfg.DBName = c.Database

	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}

	return cfg.FormatDSN()
}

func (c *DBConfig) postgresDSN() string {
	q := url.Values{}
	for k, v := range c.Params {
		q.Set(k, v)
	}

	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.HostName, orDefault(c.Port, defaultPGPort)),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}

	return u.String()
}

// sqliteDSN treats Database as the file name (or :memory:).
func (c *DBConfig) sqliteDSN() string {
	if len(c.Params) == 0 {
		return c.Database
	}

	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(c.Params[k]))
	}

	sep := "?"
	if strings.Contains(c.Database, "?") {
		sep = "&"
	}

	return c.Database + sep + strings.Join(parts, "&")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
