// SPDX-License-Identifier: Apache-2.0
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"

	"github.com/arbor-embedded/otad/pkg/config"
	"github.com/arbor-embedded/otad/pkg/errs"
)

// mdnsTimeout bounds how long Discover waits for an mDNS responder before
// falling back.
const mdnsTimeout = 5 * time.Second

// Discover locates the update server: first by mDNS query for
// cfg.MDNSService, falling back to cfg.FallbackServer if nobody answers.
// The first responder with a resolvable host and port wins; ties are
// broken by first-arrival order, there is no ranking.
func Discover(ctx context.Context, cfg *config.Config) (ServerInfo, error) {
	if info, ok := queryMDNS(ctx, cfg.MDNSService); ok {
		log.Debugf("fetch.discover: found server via mdns at %s:%d", info.Host, info.Port)
		return info, nil
	}

	if ctx.Err() != nil {
		return ServerInfo{}, errs.New(errs.KindCancelled, "fetch.discover", ctx.Err())
	}

	if cfg.FallbackServer != "" {
		info, err := parseFallback(cfg.FallbackServer)
		if err != nil {
			return ServerInfo{}, errs.New(errs.KindDiscovery, "fetch.discover", err)
		}
		log.Debugf("fetch.discover: using fallback server at %s:%d", info.Host, info.Port)
		return info, nil
	}

	return ServerInfo{}, errs.NoServer
}

func queryMDNS(ctx context.Context, service string) (ServerInfo, bool) {
	entriesCh := make(chan *mdns.ServiceEntry, 4)
	params := mdns.DefaultParams(service)
	params.Timeout = mdnsTimeout
	params.Entries = entriesCh

	done := make(chan error, 1)
	go func() { done <- mdns.Query(params) }()

	var result ServerInfo
	found := false

	queryCtx, cancel := context.WithTimeout(ctx, mdnsTimeout)
	defer cancel()

	for !found {
		select {
		case entry, ok := <-entriesCh:
			if !ok {
				return result, found
			}
			if entry == nil || entry.Port == 0 {
				continue
			}
			host := entry.AddrV4.String()
			if entry.AddrV4 == nil {
				if entry.AddrV6 != nil {
					host = entry.AddrV6.String()
				} else {
					host = strings.TrimSuffix(entry.Host, ".")
				}
			}
			result = ServerInfo{Host: host, Port: entry.Port, Source: SourceMDNS}
			found = true
		case err := <-done:
			if err != nil {
				log.Debugf("fetch.discover: mdns query error: %v", err)
			}
			return result, found
		case <-queryCtx.Done():
			return result, found
		}
	}
	return result, found
}

func parseFallback(raw string) (ServerInfo, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("invalid fallback_server URL %q: %w", raw, err)
	}
	host := u.Hostname()
	if host == "" {
		host = raw
	}
	portStr := u.Port()
	port := 80
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return ServerInfo{}, fmt.Errorf("invalid fallback_server port in %q: %w", raw, err)
		}
		port = p
	}
	return ServerInfo{Host: host, Port: port, Source: SourceFallback}, nil
}
