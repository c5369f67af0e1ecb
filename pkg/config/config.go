package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Server holds the HTTP API listener configuration.
type Server struct {
	ListenAddress  string   `yaml:"listenAddress"`
	TLSCertFile    string   `yaml:"tlsCertFile"`
	TLSKeyFile     string   `yaml:"tlsKeyFile"`
	TrustedProxies []string `yaml:"trustedProxies"` // IPs/CIDRs to trust for X-Forwarded-For headers
	// Debug enables gin debug mode and the permissive CORS policy used
	// during frontend development.
	Debug bool `yaml:"debug"`
}

// Logs controls the zap logger of the server binary.
type Logs struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // console encoder instead of JSON
}

// MySQL holds connection settings shared by the backup and monitor tools.
type MySQL struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Databases lists the schemas managed by this toolkit. Backup and
	// per-database monitoring iterate over this list.
	Databases []string `yaml:"databases"`
}

// Backup controls where dumps are written and how long they are kept.
type Backup struct {
	Path      string `yaml:"path"`
	KeepDays  int    `yaml:"keepDays"`
	KeepCount int    `yaml:"keepCount"`
	Compress  bool   `yaml:"compress"`
}

// Mail configures the SMTP transport and the async dispatcher.
type Mail struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	UseSSL             bool     `yaml:"useSSL"`
	InsecureSkipVerify bool     `yaml:"insecureSkipVerify"`
	SenderAddress      string   `yaml:"senderAddress"`
	SenderName         string   `yaml:"senderName"`
	DefaultRecipients  []string `yaml:"defaultRecipients"`

	// Workers is the size of the dispatcher worker pool.
	Workers int `yaml:"workers"`
	// MaxRetries bounds re-delivery attempts per queued notification.
	MaxRetries int `yaml:"maxRetries"`

	// Branding used by the HTML notification templates.
	SiteName   string `yaml:"siteName"`
	AdminURL   string `yaml:"adminURL"`
	ThemeColor string `yaml:"themeColor"`
	FooterText string `yaml:"footerText"`
}

type Config struct {
	Server Server `yaml:"server"`
	MySQL  MySQL  `yaml:"mysql"`
	Backup Backup `yaml:"backup"`
	Mail   Mail   `yaml:"mail"`
	Logs   Logs   `yaml:"logs"`
}

const (
	DefaultWorkers    = 3
	DefaultMaxRetries = 3
)

// Load loads the toolkit configuration from a file path.
// If configPath is empty, defaults to "./config.yaml".
// The config file path can also be overridden via the DBOPS_CONFIG_PATH
// environment variable.
func Load(configPath ...string) (Config, error) {
	var path string

	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	} else if env := os.Getenv("DBOPS_CONFIG_PATH"); env != "" {
		path = env
	} else {
		path = "./config.yaml"
	}

	var config Config

	content, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("trying to open dbops config file %s: %v", path, err)
	}

	err = yaml.Unmarshal(content, &config)
	if err != nil {
		return config, fmt.Errorf("error unmarshaling YAML %s: %v", path, err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddress == "" {
		c.Server.ListenAddress = "127.0.0.1:5000"
	}
	if c.MySQL.Host == "" {
		c.MySQL.Host = "127.0.0.1"
	}
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.User == "" {
		c.MySQL.User = "root"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "./backup"
	}
	if c.Backup.KeepDays == 0 {
		c.Backup.KeepDays = 7
	}
	if c.Backup.KeepCount == 0 {
		c.Backup.KeepCount = 10
	}
	if c.Mail.Port == 0 {
		if c.Mail.UseSSL {
			c.Mail.Port = 465
		} else {
			c.Mail.Port = 587
		}
	}
	if c.Mail.Workers <= 0 {
		c.Mail.Workers = DefaultWorkers
	}
	if c.Mail.MaxRetries <= 0 {
		c.Mail.MaxRetries = DefaultMaxRetries
	}
	if c.Mail.SiteName == "" {
		c.Mail.SiteName = "Database Operations Toolkit"
	}
	if c.Mail.ThemeColor == "" {
		c.Mail.ThemeColor = "#8ec5ff"
	}
	if c.Mail.FooterText == "" {
		c.Mail.FooterText = "Automated notification"
	}
	if c.Logs.Level == "" {
		c.Logs.Level = "info"
	}
}

// DSN returns a go-sql-driver compatible connection string. An empty
// database selects no default schema, which the monitor relies on when
// querying information_schema across databases.
func (m MySQL) DSN(database string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		m.User, m.Password, m.Host, m.Port, database)
}
