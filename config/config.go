// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config loads the fleet configuration file.
package config

import (
	"net/url"
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/yaml.v2"
)

const (
	DefaultControlEndpoint   = "wss://amssc.vms.delaval.com:8443/ws"
	DefaultSaltURL           = "https://amssc.vms.delaval.com:8445/get_salt"
	DefaultLoginURL          = "https://amssc.vms.delaval.com:8445/login"
	DefaultOrigin            = "https://vms.delaval.com"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:134.0) Gecko/20100101 Firefox/134.0"
	DefaultListenAddress     = "0.0.0.0:5000"
	DefaultRetryDelay        = 5 * time.Second
	DefaultAuthMessageDelay  = time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultLoginAttempts     = 3
	DefaultLoginRetryDelay   = 10 * time.Second
)

// Config is the validated fleet configuration.
type Config struct {
	Username string
	Password string

	// URLs are the machine endpoints; machine N (N >= 1) is URLs[N-1].
	URLs []string

	// ControlEndpoint is machine 0.
	ControlEndpoint string

	SaltURL  string
	LoginURL string

	Origin    string
	UserAgent string

	ListenAddress string

	// InsecureSkipVerify disables TLS certificate verification for both
	// the login requests and the machine connections.
	InsecureSkipVerify bool

	RetryDelay        time.Duration
	AuthMessageDelay  time.Duration
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
	HTTPTimeout       time.Duration

	LoginAttempts   int
	LoginRetryDelay time.Duration
}

// configDoc is the on-disk form. Durations are Go duration strings.
type configDoc struct {
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	URLs               []string `yaml:"urls"`
	ControlEndpoint    string   `yaml:"control-endpoint"`
	SaltURL            string   `yaml:"salt-url"`
	LoginURL           string   `yaml:"login-url"`
	Origin             string   `yaml:"origin"`
	UserAgent          string   `yaml:"user-agent"`
	ListenAddress      string   `yaml:"listen-address"`
	InsecureSkipVerify *bool    `yaml:"insecure-skip-verify"`
	RetryDelay         string   `yaml:"retry-delay"`
	AuthMessageDelay   string   `yaml:"auth-message-delay"`
	KeepaliveInterval  string   `yaml:"keepalive-interval"`
	WriteTimeout       string   `yaml:"write-timeout"`
	HTTPTimeout        string   `yaml:"http-timeout"`
	LoginAttempts      *int     `yaml:"login-attempts"`
	LoginRetryDelay    string   `yaml:"login-retry-delay"`
}

// Read loads and validates the configuration file at path.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Annotatef(err, "reading config %q", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Annotatef(err, "config %q", path)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document. JSON documents
// are accepted as they are valid YAML.
func Parse(data []byte) (Config, error) {
	var doc configDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, errors.NotValidf("config document: %v", err)
	}

	cfg := Config{
		Username:           doc.Username,
		Password:           doc.Password,
		URLs:               doc.URLs,
		ControlEndpoint:    stringOr(doc.ControlEndpoint, DefaultControlEndpoint),
		SaltURL:            stringOr(doc.SaltURL, DefaultSaltURL),
		LoginURL:           stringOr(doc.LoginURL, DefaultLoginURL),
		Origin:             stringOr(doc.Origin, DefaultOrigin),
		UserAgent:          stringOr(doc.UserAgent, DefaultUserAgent),
		ListenAddress:      stringOr(doc.ListenAddress, DefaultListenAddress),
		InsecureSkipVerify: true,
		LoginAttempts:      DefaultLoginAttempts,
	}
	if doc.InsecureSkipVerify != nil {
		cfg.InsecureSkipVerify = *doc.InsecureSkipVerify
	}
	if doc.LoginAttempts != nil {
		cfg.LoginAttempts = *doc.LoginAttempts
	}

	for _, d := range []struct {
		key   string
		value string
		def   time.Duration
		out   *time.Duration
	}{
		{"retry-delay", doc.RetryDelay, DefaultRetryDelay, &cfg.RetryDelay},
		{"auth-message-delay", doc.AuthMessageDelay, DefaultAuthMessageDelay, &cfg.AuthMessageDelay},
		{"keepalive-interval", doc.KeepaliveInterval, DefaultKeepaliveInterval, &cfg.KeepaliveInterval},
		{"write-timeout", doc.WriteTimeout, DefaultWriteTimeout, &cfg.WriteTimeout},
		{"http-timeout", doc.HTTPTimeout, DefaultHTTPTimeout, &cfg.HTTPTimeout},
		{"login-retry-delay", doc.LoginRetryDelay, DefaultLoginRetryDelay, &cfg.LoginRetryDelay},
	} {
		if d.value == "" {
			*d.out = d.def
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, errors.NotValidf("%s %q", d.key, d.value)
		}
		*d.out = parsed
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Trace(err)
	}
	return cfg, nil
}

// Validate checks that the configuration can run a fleet.
func (c Config) Validate() error {
	if c.Username == "" {
		return errors.NotValidf("empty username")
	}
	if c.Password == "" {
		return errors.NotValidf("empty password")
	}
	if len(c.URLs) == 0 {
		return errors.NotValidf("empty urls")
	}
	for _, endpoint := range c.Endpoints() {
		if err := checkURL(endpoint, "ws", "wss"); err != nil {
			return errors.Trace(err)
		}
	}
	if err := checkURL(c.SaltURL, "http", "https"); err != nil {
		return errors.Trace(err)
	}
	if err := checkURL(c.LoginURL, "http", "https"); err != nil {
		return errors.Trace(err)
	}
	if c.ListenAddress == "" {
		return errors.NotValidf("empty listen-address")
	}
	for key, d := range map[string]time.Duration{
		"retry-delay":        c.RetryDelay,
		"keepalive-interval": c.KeepaliveInterval,
		"write-timeout":      c.WriteTimeout,
		"http-timeout":       c.HTTPTimeout,
		"login-retry-delay":  c.LoginRetryDelay,
	} {
		if d <= 0 {
			return errors.NotValidf("%s %v", key, d)
		}
	}
	if c.AuthMessageDelay < 0 {
		return errors.NotValidf("auth-message-delay %v", c.AuthMessageDelay)
	}
	if c.LoginAttempts < 1 {
		return errors.NotValidf("login-attempts %d", c.LoginAttempts)
	}
	return nil
}

// Endpoints returns every machine endpoint indexed by machine: the
// control endpoint first, then the configured urls in order.
func (c Config) Endpoints() []string {
	endpoints := make([]string, 0, len(c.URLs)+1)
	endpoints = append(endpoints, c.ControlEndpoint)
	return append(endpoints, c.URLs...)
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.NotValidf("url %q", raw)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return errors.NotValidf("url %q (want %s with a host)", raw, schemes)
}

func stringOr(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
