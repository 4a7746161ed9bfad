package prober

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveDNS runs handler on a loopback UDP port.
func serveDNS(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler:           handler,
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

// startDNSServer serves fixed A records on a loopback UDP port.
func startDNSServer(t *testing.T, records map[string][]string) string {
	t.Helper()
	return serveDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		name := r.Question[0].Name
		addrs, ok := records[name]
		if !ok {
			m.SetRcode(r, dns.RcodeNameError)
			_ = w.WriteMsg(m)
			return
		}
		m.SetReply(r)
		for _, addr := range addrs {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(addr),
			})
		}
		_ = w.WriteMsg(m)
	})
}

// startFailingDNSServer answers every query with rcode.
func startFailingDNSServer(t *testing.T, rcode int) string {
	t.Helper()
	return serveDNS(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetRcode(r, rcode)
		_ = w.WriteMsg(m)
	})
}

func TestResolve(t *testing.T) {
	server := startDNSServer(t, map[string][]string{
		"google.com.":     {"142.250.74.46", "142.250.74.46"},
		"cloudflare.com.": {"192.168.1.66"},
		"empty.example.":  {},
	})
	s := NewSystem(Timeouts{DNS: 2 * time.Second}, WithResolvers(server))
	ctx := context.Background()

	addrs, err := s.Resolve(ctx, "google.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"142.250.74.46"}, addrs)

	addrs, err = s.Resolve(ctx, "cloudflare.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.66"}, addrs)

	_, err = s.Resolve(ctx, "nonexistent.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")

	_, err = s.Resolve(ctx, "empty.example")
	assert.Error(t, err)
}

func TestResolveSkipsDeadServer(t *testing.T) {
	live := startDNSServer(t, map[string][]string{"one.one.one.one.": {"1.1.1.1"}})

	// Nothing listens here; the query times out and the next server answers.
	dead, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.LocalAddr().String()
	require.NoError(t, dead.Close())

	s := NewSystem(Timeouts{DNS: 300 * time.Millisecond}, WithResolvers(deadAddr, live))
	addrs, err := s.Resolve(context.Background(), "one.one.one.one")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1"}, addrs)
}

func TestNameserversFromResolvConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("search lan\nnameserver 192.168.1.254\nnameserver 1.1.1.1\n"), 0o644))

	servers, err := NewSystem(DefaultTimeouts, WithResolvConf(path)).nameservers()
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.254:53", "1.1.1.1:53"}, servers)

	_, err = NewSystem(DefaultTimeouts, WithResolvConf(filepath.Join(t.TempDir(), "missing"))).nameservers()
	assert.Error(t, err)
}

func TestResolveFallsThroughServerFailures(t *testing.T) {
	live := startDNSServer(t, map[string][]string{"example.com.": {"93.184.216.34"}})

	for _, rcode := range []int{dns.RcodeServerFailure, dns.RcodeRefused} {
		t.Run(dns.RcodeToString[rcode], func(t *testing.T) {
			failing := startFailingDNSServer(t, rcode)
			s := NewSystem(Timeouts{DNS: 2 * time.Second}, WithResolvers(failing, live))

			addrs, err := s.Resolve(context.Background(), "example.com")
			require.NoError(t, err)
			assert.Equal(t, []string{"93.184.216.34"}, addrs)
		})
	}

	t.Run("all servers failing", func(t *testing.T) {
		s := NewSystem(Timeouts{DNS: 2 * time.Second},
			WithResolvers(startFailingDNSServer(t, dns.RcodeServerFailure), startFailingDNSServer(t, dns.RcodeRefused)))

		_, err := s.Resolve(context.Background(), "example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SERVFAIL")
		assert.Contains(t, err.Error(), "REFUSED")
	})
}

func TestResolveNXDomainIsFinal(t *testing.T) {
	first := startDNSServer(t, map[string][]string{})
	second := startDNSServer(t, map[string][]string{"gone.example.": {"10.0.0.1"}})
	s := NewSystem(Timeouts{DNS: 2 * time.Second}, WithResolvers(first, second))

	_, err := s.Resolve(context.Background(), "gone.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}
