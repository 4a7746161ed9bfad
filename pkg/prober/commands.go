package prober

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	neighborLine = regexp.MustCompile(`^(\d+\.\d+\.\d+\.\d+)\s+dev\s+(\S+)\s+lladdr\s+([0-9a-fA-F:]+)\s+(\S+)`)
	pingReceived = regexp.MustCompile(`(\d+) (?:packets )?received`)
)

// Neighbors runs `ip neigh show` and parses its IPv4 entries.
func (s *System) Neighbors(ctx context.Context) ([]Neighbor, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := execCommand(ctx, "ip", "-4", "neigh", "show").Output()
	if err != nil {
		return nil, fmt.Errorf("ip neigh: %w", err)
	}
	return parseNeighbors(string(out)), nil
}

func parseNeighbors(output string) []Neighbor {
	var neighbors []Neighbor
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := neighborLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		neighbors = append(neighbors, Neighbor{
			IP:     m[1],
			Device: m[2],
			MAC:    strings.ToUpper(m[3]),
			State:  m[4],
		})
	}
	return neighbors
}

// Ping runs the system ping binary. An unreachable host is not an error: it
// is reported as zero replies.
func (s *System) Ping(ctx context.Context, host string, count int) (int, error) {
	if _, err := netip.ParseAddr(host); err != nil {
		return 0, fmt.Errorf("refusing to ping %q: %w", host, err)
	}
	if count < 1 {
		count = 1
	}
	wait := s.timeouts.Ping
	if wait < time.Second {
		wait = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(count)*wait+3*time.Second)
	defer cancel()

	waitSecs := strconv.Itoa(int(wait / time.Second))
	out, err := execCommand(ctx, "ping", "-n", "-c", strconv.Itoa(count), "-W", waitSecs, host).Output()
	if received, ok := parsePingReceived(string(out)); ok {
		return received, nil
	}
	if err != nil {
		// ping exits non-zero when nothing came back.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, nil
		}
		return 0, fmt.Errorf("ping %s: %w", host, err)
	}
	return 0, nil
}

func parsePingReceived(output string) (int, bool) {
	m := pingReceived.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DefaultInterface reads the device of the default route.
func (s *System) DefaultInterface(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := execCommand(ctx, "ip", "-4", "route", "show", "default").Output()
	if err != nil {
		return "", fmt.Errorf("ip route: %w", err)
	}
	iface := parseDefaultInterface(string(out))
	if iface == "" {
		return "", errors.New("no default route")
	}
	return iface, nil
}

func parseDefaultInterface(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "dev" {
				return fields[i+1]
			}
		}
	}
	return ""
}
