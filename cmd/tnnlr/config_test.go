package main

import "testing"

func TestConfigValidate(t *testing.T) {
	valid := Config{Port: 3000, APIURL: "https://api.example", MaxConnections: 10, Retry: 3, RetryDelay: 5, LocalInsecure: true}
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Port = 70000 }, true},
		{"missing url", func(c *Config) { c.APIURL = "" }, true},
		{"zero connections", func(c *Config) { c.MaxConnections = 0 }, true},
		{"zero retry", func(c *Config) { c.Retry = 0 }, true},
		{"negative delay", func(c *Config) { c.RetryDelay = -1 }, true},
		{"https without certs", func(c *Config) { c.LocalHTTPS = true; c.LocalInsecure = false }, true},
		{"https with certs", func(c *Config) {
			c.LocalHTTPS = true
			c.LocalInsecure = false
			c.LocalCertFile = "cert.pem"
			c.LocalKeyFile = "key.pem"
		}, false},
		{"https insecure", func(c *Config) { c.LocalHTTPS = true }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			err := c.validate()
			if tc.wantErr && err == nil {
				t.Error("expected an error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
