// Package config loads the service configuration from YAML, applies
// environment overrides, and resolves command-line flags. Precedence:
// explicit flags win over env vars, env vars win over the file.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Ingest struct {
		Workers       int `yaml:"workers"`
		QueueCapacity int `yaml:"queue_capacity"`
		TimeoutMS     int `yaml:"timeout_ms"`
	} `yaml:"ingest"`
	Snapshot struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"snapshot"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// DBPath returns the storage path with a default.
func (c *Config) DBPath() string {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath
	}
	return "./.database"
}

// Workers returns the ingest worker count with a default.
func (c *Config) Workers() int {
	if c.Ingest.Workers > 0 {
		return c.Ingest.Workers
	}
	return 4
}

// Load reads a YAML config file. A missing file is not an error when
// optional is set; an empty Config is returned instead.
func Load(path string, optional bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && optional {
			return &cfg, nil
		}
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnvOverrides mutates cfg from CHATGRAPH_* env vars and reports
// whether any were used.
func ApplyEnvOverrides(cfg *Config) bool {
	used := false
	if v := os.Getenv("CHATGRAPH_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		}
	}
	if v := os.Getenv("CHATGRAPH_DB_PATH"); v != "" {
		used = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHATGRAPH_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("CHATGRAPH_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			used = true
			cfg.Ingest.Workers = n
		}
	}
	return used
}

// ParseCommandFlags defines and parses the command-line flags, returning
// their values plus the set of flags the user explicitly provided.
func ParseCommandFlags() (addr, dbPath, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}
