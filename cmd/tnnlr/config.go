package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
)

// Config holds agent runtime configuration.
type Config struct {
	Port           int
	APIURL         string
	APIKey         string
	LocalHost      string
	LocalHTTPS     bool
	LocalInsecure  bool
	LocalCertFile  string
	LocalKeyFile   string
	LocalCAFile    string
	URLFile        string
	MaxConnections int
	Retry          int
	RetryDelay     float64
	MetricsAddr    string
	AnnounceRedis  string
	AnnouncePass   string
	AnnounceDB     int
	Debug          bool
}

var cfg Config

// init registers all flags into the default flag set; main() calls
// parseConfig before validation so tests never trip over flag.Parse.
func init() {
	flag.IntVar(&cfg.Port, "port", 0, "local server port to expose (required)")
	flag.StringVar(&cfg.APIURL, "url", "", "control plane URL that assigns tunnel endpoints (required)")
	flag.StringVar(&cfg.APIKey, "api-key", "", "control plane API key (falls back to TNNLR_API_KEY)")
	flag.StringVar(&cfg.LocalHost, "local-host", "localhost", "host of the local server; a non-loopback value also rewrites the forwarded Host header")
	flag.BoolVar(&cfg.LocalHTTPS, "local-https", false, "connect to the local server over TLS")
	flag.BoolVar(&cfg.LocalInsecure, "local-insecure", true, "skip local TLS certificate verification")
	flag.StringVar(&cfg.LocalCertFile, "local-cert", "", "client certificate for the local TLS leg")
	flag.StringVar(&cfg.LocalKeyFile, "local-key", "", "client key for the local TLS leg")
	flag.StringVar(&cfg.LocalCAFile, "local-ca", "", "CA bundle trusted for the local TLS leg")
	flag.StringVar(&cfg.URLFile, "url-file", "", "write the assigned public URL to this file")
	flag.IntVar(&cfg.MaxConnections, "max-connections", 10, "tunnel connections to keep open")
	flag.IntVar(&cfg.Retry, "retry", 3, "endpoint acquisition attempts")
	flag.Float64Var(&cfg.RetryDelay, "retry-delay", 5.0, "seconds between endpoint acquisition attempts")
	flag.StringVar(&cfg.MetricsAddr, "metrics", "", "metrics and health listen address (empty = disabled)")
	flag.StringVar(&cfg.AnnounceRedis, "announce-redis", "", "redis address for agent presence announcements (empty = disabled)")
	flag.StringVar(&cfg.AnnouncePass, "announce-redis-password", "", "redis password for presence announcements")
	flag.IntVar(&cfg.AnnounceDB, "announce-redis-db", 0, "redis database for presence announcements")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logs")
}

func parseConfig() {
	flag.Parse()
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("TNNLR_API_KEY")
	}
}

// validate returns a usage error for missing or out-of-range flags.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("--port must be in 1-65535 (got %d)", c.Port)
	}
	if c.APIURL == "" {
		return errors.New("--url is required")
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("--max-connections must be positive (got %d)", c.MaxConnections)
	}
	if c.Retry < 1 {
		return fmt.Errorf("--retry must be positive (got %d)", c.Retry)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("--retry-delay must not be negative (got %g)", c.RetryDelay)
	}
	if c.LocalHTTPS && !c.LocalInsecure && (c.LocalCertFile == "" || c.LocalKeyFile == "") {
		return errors.New("--local-cert and --local-key are required with --local-https unless --local-insecure is set")
	}
	return nil
}
