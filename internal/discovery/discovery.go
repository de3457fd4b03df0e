// Package discovery finds media servers on the local network over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/tessro/elixir/internal/core"
)

const (
	// ServiceType is the DNS-SD service type media servers advertise.
	ServiceType = "_elixir-media._tcp"
	domain      = "local."
	defaultTTL  = 5 * time.Minute
)

// Service is one advertised server instance.
type Service struct {
	Instance  string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Addresses []string  `json:"addresses"`
	LastSeen  time.Time `json:"last_seen"`
}

// Address returns the preferred host:port, IPv4 first.
func (s *Service) Address() string {
	host := ""
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	} else {
		host = strings.TrimSuffix(s.Host, ".")
	}
	if host == "" || s.Port <= 0 {
		return ""
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Candidate converts the service into a local server candidate.
func (s *Service) Candidate() (core.ServerCandidate, bool) {
	addr := s.Address()
	if addr == "" {
		return core.ServerCandidate{}, false
	}
	label := s.Instance
	if label == "" {
		label = addr
	}
	return core.ServerCandidate{
		ID:      "mdns:" + s.Instance,
		Label:   label,
		URL:     core.NormalizeEndpoint(addr),
		Source:  core.SourceDiscovery,
		Network: core.NetworkLocal,
	}, true
}

// BrowseFunc starts an mDNS browse that delivers entries until ctx is done.
type BrowseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Browser discovers servers and caches what it has seen.
type Browser struct {
	service string
	timeout time.Duration
	ttl     time.Duration
	browse  BrowseFunc
	logger  zerolog.Logger

	mu       sync.RWMutex
	services map[string]*Service // keyed by instance name
}

// NewBrowser creates a Browser for service. An empty service uses ServiceType.
func NewBrowser(service string, timeout time.Duration, logger zerolog.Logger) *Browser {
	if service == "" {
		service = ServiceType
	}
	if timeout == 0 {
		timeout = 1200 * time.Millisecond
	}
	return &Browser{
		service:  service,
		timeout:  timeout,
		ttl:      defaultTTL,
		browse:   zeroconfBrowse,
		logger:   logger,
		services: make(map[string]*Service),
	}
}

// SetBrowseFunc replaces the mDNS implementation.
func (b *Browser) SetBrowseFunc(fn BrowseFunc) {
	b.browse = fn
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("init mdns resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Discover browses for the configured window and returns every service
// found, deduplicated by instance name and sorted by name.
func (b *Browser) Discover(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := b.browse(ctx, b.service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", b.service, err)
	}

	seen := make(map[string]*Service)
collect:
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				break collect
			}
			svc := fromEntry(entry)
			if svc == nil {
				continue
			}
			if _, dup := seen[svc.Instance]; dup {
				continue
			}
			seen[svc.Instance] = svc
			b.logger.Debug().Str("instance", svc.Instance).Str("addr", svc.Address()).Msg("discovered server")
		case <-ctx.Done():
			break collect
		}
	}

	services := make([]*Service, 0, len(seen))
	b.mu.Lock()
	for _, svc := range seen {
		services = append(services, svc)
		b.services[svc.Instance] = svc
	}
	b.mu.Unlock()

	sort.Slice(services, func(i, j int) bool { return services[i].Instance < services[j].Instance })
	return services, nil
}

// Candidates runs Discover and converts the results. Services without a
// resolvable address are skipped.
func (b *Browser) Candidates(ctx context.Context) ([]core.ServerCandidate, error) {
	services, err := b.Discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.ServerCandidate, 0, len(services))
	for _, svc := range services {
		if c, ok := svc.Candidate(); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Lookup returns a cached service by instance name or address.
func (b *Browser) Lookup(identifier string) *Service {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if svc, ok := b.services[identifier]; ok && time.Since(svc.LastSeen) < b.ttl {
		return svc
	}
	for _, svc := range b.services {
		if time.Since(svc.LastSeen) >= b.ttl {
			continue
		}
		if strings.EqualFold(svc.Instance, identifier) || svc.Address() == identifier {
			return svc
		}
	}
	return nil
}

// Cached returns every cached service that has not expired.
func (b *Browser) Cached() []*Service {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var services []*Service
	now := time.Now()
	for _, svc := range b.services {
		if now.Sub(svc.LastSeen) < b.ttl {
			services = append(services, svc)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Instance < services[j].Instance })
	return services
}

func fromEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil {
		return nil
	}
	svc := &Service{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
		LastSeen: time.Now(),
	}
	for _, ip := range entry.AddrIPv4 {
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		if ip.IsLinkLocalUnicast() {
			continue
		}
		svc.Addresses = append(svc.Addresses, ip.String())
	}
	return svc
}
