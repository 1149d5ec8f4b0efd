package remote

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds one probe of a candidate backend
const probeTimeout = 500 * time.Millisecond

// DefaultPort is where a backend listens unless configured otherwise
const DefaultPort = 61070

// Port returns the port of a backend base URL, DefaultPort when it has none
func Port(baseURL string) int {
	u, err := url.Parse(baseURL)
	if err != nil || u.Port() == "" {
		return DefaultPort
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return DefaultPort
	}
	return p
}

// Backend is a mapping backend found on the network
type Backend struct {
	URL  string `json:"url"`
	Keys int    `json:"keys"`
}

// LocalIPs returns the IPv4 addresses of the interfaces that are up, loopback excluded
func LocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}

// subnetHosts lists the other hosts of the /24 of ip
func subnetHosts(ip string) ([]string, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invalid IP address format: %s", ip)
	}
	subnet := strings.Join(parts[:3], ".")

	hosts := make([]string, 0, 253)
	for i := 1; i <= 254; i++ {
		host := fmt.Sprintf("%s.%d", subnet, i)
		if host != ip {
			hosts = append(hosts, host)
		}
	}
	return hosts, nil
}

// ScanLAN looks for backends listening on port in the /24 subnets of every local interface
func ScanLAN(ctx context.Context, port int, token string) ([]Backend, error) {
	ips, err := LocalIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	seen := make(map[string]bool)
	var hosts []string
	for _, ip := range ips {
		candidates, err := subnetHosts(ip)
		if err != nil {
			continue
		}
		for _, h := range candidates {
			if !seen[h] {
				seen[h] = true
				hosts = append(hosts, h)
			}
		}
	}
	return Scan(ctx, hosts, port, token)
}

// Scan probes every host on port and returns the ones serving a valid mapping, sorted by URL
func Scan(ctx context.Context, hosts []string, port int, token string) ([]Backend, error) {
	var (
		mu    sync.Mutex
		found []Backend
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(64)
	for _, host := range hosts {
		baseURL := "http://" + net.JoinHostPort(host, strconv.Itoa(port))
		g.Go(func() error {
			if b, ok := probe(gctx, baseURL, token); ok {
				mu.Lock()
				found = append(found, b)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].URL < found[j].URL })
	return found, ctx.Err()
}

// probe checks that baseURL answers /health and serves a valid document
func probe(ctx context.Context, baseURL, token string) (Backend, bool) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	c := NewClient(baseURL, token)
	c.http.Timeout = probeTimeout
	if err := c.Health(ctx); err != nil {
		return Backend{}, false
	}
	doc, err := c.Fetch(ctx)
	if err != nil {
		return Backend{}, false
	}
	return Backend{URL: baseURL, Keys: doc.KeyMaps.Len()}, true
}
