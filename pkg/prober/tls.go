package prober

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"
)

// CertificateExpiry completes a handshake without verification and returns
// the leaf certificate's expiry. Self-signed and expired certificates are
// exactly what this probe needs to see.
func (s *System) CertificateExpiry(ctx context.Context, host string, port int) (time.Time, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.timeouts.TLS},
		Config: &tls.Config{
			InsecureSkipVerify: true, // #nosec G402 -- inspecting, not trusting
			ServerName:         host,
			MinVersion:         tls.VersionTLS10,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeouts.TLS)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, errors.New("no peer certificate")
	}
	return certs[0].NotAfter, nil
}
