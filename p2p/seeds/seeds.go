// Package seeds loads the bootstrap peer list: a plain text file with one
// address per line. Lines holding hostnames are resolved so the peer
// database only ever stores IP addresses.
package seeds

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// Resolver resolves hostnames found in the seed file. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DefaultResolver returns the system resolver.
func DefaultResolver() *net.Resolver {
	return net.DefaultResolver
}

const resolveTimeout = 5 * time.Second

// Load reads the seed file and returns the bootstrap addresses. IP literals
// pass through untouched; hostnames resolve through the resolver, with
// failures logged and skipped. A missing file is the caller's warning, not
// an error here beyond the os sentinel.
func Load(path string, resolver Resolver, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if resolver == nil {
		resolver = DefaultResolver()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]struct{})
	addrs := make([]string, 0)
	add := func(addr string) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if ip := net.ParseIP(line); ip != nil {
			add(ip.String())
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		resolved, err := resolver.LookupHost(ctx, line)
		cancel()
		if err != nil {
			logger.Warn("Could not resolve seed host",
				slog.String("host", line),
				slog.Any("error", err))
			continue
		}
		for _, host := range resolved {
			if ip := net.ParseIP(host); ip != nil {
				add(ip.String())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return addrs, nil
}
