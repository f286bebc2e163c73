package tunnel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

const localDialTimeout = 10 * time.Second

// LocalConfig describes the operator-side leg of a tunnel.
type LocalConfig struct {
	Host string
	Port int

	// HTTPS switches the leg to TLS. AllowInvalidCert skips verification;
	// otherwise a client certificate and key are loaded from disk, with an
	// optional CA bundle.
	HTTPS            bool
	AllowInvalidCert bool
	CertFile         string
	KeyFile          string
	CAFile           string
}

func (c LocalConfig) addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

func (c LocalConfig) tlsConfig() (*tls.Config, error) {
	if c.AllowInvalidCert {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, &LocalConfigError{Err: err}
	}
	tcfg := &tls.Config{Certificates: []tls.Certificate{cert}, ServerName: c.Host}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, &LocalConfigError{Err: err}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &LocalConfigError{Err: fmt.Errorf("no certificates in %s", c.CAFile)}
		}
		tcfg.RootCAs = pool
	}
	return tcfg, nil
}

// dialLocal opens the connection to the operator's server. Certificate
// material is read synchronously here; its failure surfaces before any
// socket is opened.
func dialLocal(ctx context.Context, cfg LocalConfig) (net.Conn, error) {
	d := net.Dialer{Timeout: localDialTimeout}
	if !cfg.HTTPS {
		conn, err := d.DialContext(ctx, "tcp", cfg.addr())
		if err != nil {
			return nil, &DialError{Side: "local", Addr: cfg.addr(), Refused: isConnRefused(err), Err: err}
		}
		return conn, nil
	}
	tcfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, err
	}
	td := tls.Dialer{NetDialer: &d, Config: tcfg}
	conn, err := td.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, &DialError{Side: "local", Addr: cfg.addr(), Refused: isConnRefused(err), Err: err}
	}
	return conn, nil
}

// isLoopback reports whether host names the conventional local listener, in
// which case the forwarded Host header is left untouched.
func isLoopback(host string) bool { return host == "localhost" || host == "127.0.0.1" }
