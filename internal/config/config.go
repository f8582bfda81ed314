// Package config loads posture settings from flags, POSTURE_* environment
// variables, a YAML config file and defaults, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable: dns.timeout is POSTURE_DNS_TIMEOUT.
const EnvPrefix = "POSTURE"

type DNS struct {
	Servers []string // empty means /etc/resolv.conf
	Timeout time.Duration
}

type CT struct {
	BaseURL string
	Timeout time.Duration
}

type Breach struct {
	APIKey        string
	BaseURL       string
	RatePerMinute int
	Timeout       time.Duration
}

type Cache struct {
	Driver string // memory, sqlite or postgres
	DSN    string
	TTL    time.Duration
}

// Config is the resolved configuration.
type Config struct {
	UserAgent    string
	ListenAddr   string
	DNS          DNS
	WhoisTimeout time.Duration
	TLSTimeout   time.Duration
	HTTPTimeout  time.Duration
	PTRTimeout   time.Duration
	CT           CT
	Breach       Breach
	Cache        Cache
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("user_agent", "posture/dev (+https://github.com/vulnverified/posture)")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("dns.servers", []string{})
	v.SetDefault("dns.timeout", 5*time.Second)
	v.SetDefault("whois.timeout", 15*time.Second)
	v.SetDefault("tls.timeout", 10*time.Second)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("ptr.timeout", 5*time.Second)
	v.SetDefault("ct.base_url", "https://crt.sh/")
	v.SetDefault("ct.timeout", 20*time.Second)
	v.SetDefault("breach.api_key", "")
	v.SetDefault("breach.base_url", "https://haveibeenpwned.com/api/v3/")
	v.SetDefault("breach.rate_per_minute", 10)
	v.SetDefault("breach.timeout", 15*time.Second)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", 30*24*time.Hour)
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (or the first of ./posture.yaml and ~/.posture.yaml
// that exists) into v and resolves the configuration. An explicitly named
// file must exist.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile == "" {
		configFile = discover()
	} else if _, err := os.Stat(configFile); err != nil {
		return Config{}, fmt.Errorf("config file: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := Config{
		UserAgent:  v.GetString("user_agent"),
		ListenAddr: v.GetString("listen_addr"),
		DNS: DNS{
			Servers: splitList(v.GetStringSlice("dns.servers")),
			Timeout: v.GetDuration("dns.timeout"),
		},
		WhoisTimeout: v.GetDuration("whois.timeout"),
		TLSTimeout:   v.GetDuration("tls.timeout"),
		HTTPTimeout:  v.GetDuration("http.timeout"),
		PTRTimeout:   v.GetDuration("ptr.timeout"),
		CT: CT{
			BaseURL: v.GetString("ct.base_url"),
			Timeout: v.GetDuration("ct.timeout"),
		},
		Breach: Breach{
			APIKey:        v.GetString("breach.api_key"),
			BaseURL:       v.GetString("breach.base_url"),
			RatePerMinute: v.GetInt("breach.rate_per_minute"),
			Timeout:       v.GetDuration("breach.timeout"),
		},
		Cache: Cache{
			Driver: strings.ToLower(v.GetString("cache.driver")),
			DSN:    v.GetString("cache.dsn"),
			TTL:    v.GetDuration("cache.ttl"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	timeouts := map[string]time.Duration{
		"dns.timeout":    c.DNS.Timeout,
		"whois.timeout":  c.WhoisTimeout,
		"tls.timeout":    c.TLSTimeout,
		"http.timeout":   c.HTTPTimeout,
		"ptr.timeout":    c.PTRTimeout,
		"ct.timeout":     c.CT.Timeout,
		"breach.timeout": c.Breach.Timeout,
		"cache.ttl":      c.Cache.TTL,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Breach.RatePerMinute <= 0 {
		return errors.New("breach.rate_per_minute must be positive")
	}
	switch c.Cache.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for the %s driver", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be memory, sqlite or postgres, got %q", c.Cache.Driver)
	}
	return nil
}

func discover() string {
	candidates := []string{"posture.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".posture.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
