/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package discover finds model servers and log sinks on the local network
// over mDNS.
package discover

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	ModelService = "_golmi._tcp"
	SinkService  = "_golmi-log._tcp"
	Domain       = "local."
)

// Service is one announced endpoint.
type Service struct {
	Instance string
	Host     string
	Port     int
	// Path comes from a "path=" TXT record and defaults to "/".
	Path string
}

// URL formats the service as a URL with the given scheme.
func (s Service) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   s.Path,
	}
	return u.String()
}

// Browse collects services until ctx is done and returns them sorted by
// instance name.
func Browse(ctx context.Context, service, domain string) ([]Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("initialize mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan []Service, 1)
	go func() {
		seen := map[string]Service{}
	collect:
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					break collect
				}
				if s, ok := fromEntry(entry); ok {
					seen[s.Instance] = s
				}
			case <-ctx.Done():
				break collect
			}
		}
		services := make([]Service, 0, len(seen))
		for _, s := range seen {
			services = append(services, s)
		}
		sort.Slice(services, func(i, j int) bool { return services[i].Instance < services[j].Instance })
		done <- services
	}()

	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", service, err)
	}
	return <-done, nil
}

func fromEntry(e *zeroconf.ServiceEntry) (Service, bool) {
	var host string
	switch {
	case len(e.AddrIPv4) > 0:
		host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		host = e.AddrIPv6[0].String()
	case e.HostName != "":
		host = strings.TrimSuffix(e.HostName, ".")
	default:
		return Service{}, false
	}
	return Service{
		Instance: e.Instance,
		Host:     host,
		Port:     e.Port,
		Path:     txtValue(e.Text, "path", "/"),
	}, true
}

func txtValue(records []string, key, fallback string) string {
	for _, r := range records {
		if k, v, ok := strings.Cut(r, "="); ok && k == key {
			return v
		}
	}
	return fallback
}

// Announcement is a registered service. Shutdown withdraws it.
type Announcement struct {
	server *zeroconf.Server
}

// Announce registers name as an instance of service on port.
func Announce(name, service string, port int, path string) (*Announcement, error) {
	if path == "" {
		path = "/"
	}
	server, err := zeroconf.Register(name, service, Domain, port, []string{"txtv=0", "path=" + path}, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	return &Announcement{server: server}, nil
}

func (a *Announcement) Shutdown() {
	a.server.Shutdown()
}
