package checker

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"
)

const defaultTLSTimeout = 10 * time.Second

// TLSChecker dials a TLS endpoint and inspects the leaf certificate.
// Healthy means the handshake succeeded and the certificate has not expired;
// the remaining lifetime is reported in Detail for the expiry cache.
type TLSChecker struct {
	name    string
	host    string
	addr    string
	timeout time.Duration
}

// NewTLS builds a TLS checker for host, which may carry an explicit port.
// Port 443 is assumed otherwise.
func NewTLS(name, host string, timeout time.Duration) (*TLSChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if host == "" {
		return nil, ErrMissingHost
	}

	addr := host
	hostname, _, err := net.SplitHostPort(host)
	if err != nil {
		hostname = host
		addr = net.JoinHostPort(host, "443")
	}

	if timeout <= 0 {
		timeout = defaultTLSTimeout
	}

	return &TLSChecker{
		name:    name,
		host:    hostname,
		addr:    addr,
		timeout: timeout,
	}, nil
}

func (c *TLSChecker) ID() string {
	return c.name
}

func (c *TLSChecker) Category() Category {
	return CategoryTLS
}

// Host returns the certificate's domain, the key of the expiry cache.
func (c *TLSChecker) Host() string {
	return c.host
}

func (c *TLSChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Chain trust is not validated; expiry must be readable even from
	// self-signed or privately rooted certs.
	dialer := &tls.Dialer{
		Config: &tls.Config{
			ServerName:         c.host,
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return timeoutOr(ctx, Result{Healthy: false, Error: err.Error()})
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return Result{Healthy: false, Error: "no peer certificate presented"}
	}

	notAfter := state.PeerCertificates[0].NotAfter
	now := time.Now()
	daysLeft := int(notAfter.Sub(now).Hours() / 24)

	r := Result{
		Healthy: now.Before(notAfter),
		Detail: map[string]string{
			"host":      c.host,
			"not_after": notAfter.Format(time.RFC3339),
			"days_left": strconv.Itoa(daysLeft),
		},
	}
	if !r.Healthy {
		r.Error = fmt.Sprintf("certificate expired %d days ago", -daysLeft)
	}

	return r
}
