// Package discovery finds Companion devices on the local network via
// DNS-SD. Devices advertise the _companion-link._tcp service with TXT
// records describing the model and pairing capabilities.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceCompanionLink is the DNS-SD service type of the Companion
// protocol.
const ServiceCompanionLink = "_companion-link._tcp"

// DefaultDomain is the DNS-SD browse domain.
const DefaultDomain = "local."

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// Service describes a discovered Companion device.
type Service struct {
	// InstanceName is the DNS-SD instance name (usually the device name).
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the service port.
	Port int

	// IPs contains the resolved addresses, IPv4 first.
	IPs []net.IP

	// Text contains the parsed TXT record key-value pairs.
	Text map[string]string
}

// Address returns a dialable host:port for the preferred address.
// Falls back to the host name when no address was resolved.
func (s *Service) Address() string {
	if len(s.IPs) > 0 {
		return net.JoinHostPort(s.IPs[0].String(), itoa(s.Port))
	}
	return net.JoinHostPort(s.HostName, itoa(s.Port))
}

// Model returns the advertised device model, if any.
func (s *Service) Model() string {
	return s.Text[TXTModel]
}

// PairingDisabled reports whether the device refuses new pairings.
func (s *Service) PairingDisabled() bool {
	return PairingFlags(s.Text)&FlagPairingDisabled != 0
}

// SupportsPINPairing reports whether PIN pairing is advertised.
func (s *Service) SupportsPINPairing() bool {
	return PairingFlags(s.Text)&FlagPINPairing != 0
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using
// grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Lookup(ctx, instance, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration
}

// Resolver discovers Companion devices via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
}

// NewResolver creates a Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}

	return &Resolver{config: config, resolver: resolver}, nil
}

// Browse discovers Companion devices. The channel receives discovered
// services until the context is cancelled or the browse timeout
// expires.
func (r *Resolver) Browse(ctx context.Context) (<-chan Service, error) {
	results := make(chan Service)
	entries := make(chan *zeroconf.ServiceEntry)

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer close(entries)
		r.resolver.Browse(ctx, ServiceCompanionLink, DefaultDomain, entries)
	}()

	go func() {
		defer close(results)
		defer cancel()
		for entry := range entries {
			svc := entryToService(entry)
			select {
			case results <- svc:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, nil
}

// Lookup resolves a specific device by DNS-SD instance name.
func (r *Resolver) Lookup(ctx context.Context, instanceName string) (*Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instanceName, ServiceCompanionLink, DefaultDomain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc := entryToService(entry)
		return &svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// entryToService converts a zeroconf.ServiceEntry to a Service.
func entryToService(entry *zeroconf.ServiceEntry) Service {
	var ips []net.IP
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)

	return Service{
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          ips,
		Text:         ParseTXT(entry.Text),
	}
}

func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
