// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

// Package dns resolves candidate hostnames against a recursive resolver.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/autodns/deltawatch/core"
	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultConcurrency = 16

	resolvConf = "/etc/resolv.conf"
)

// ErrResolverFailure reports an answer that says nothing about whether a name
// exists, such as SERVFAIL or REFUSED.
var ErrResolverFailure = errors.New("resolver failure")

type Source struct {
	Client      *dns.Client
	Server      string
	Concurrency int
}

func New(server string, timeout time.Duration, concurrency int) *Source {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Source{
		Client:      &dns.Client{Net: "udp", Timeout: timeout},
		Server:      server,
		Concurrency: concurrency,
	}
}

// Snapshot resolves every hostname to its A record, falling back to AAAA.
// Names answered with NXDOMAIN or no address are left out. Any other failure
// fails the whole snapshot.
func (s *Source) Snapshot(ctx context.Context, hostnames []string) (core.Snapshot, error) {
	var (
		snapshot    = core.Snapshot{}
		snapshotMux sync.Mutex
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)

	keys := make([]core.DomainKey, 0, len(hostnames))
	for _, hostname := range hostnames {
		key, err := core.Canonicalize(hostname)
		if err != nil {
			return nil, fmt.Errorf("dns: hostname %q: %v", hostname, err)
		}
		keys = append(keys, key)
	}

	for _, key := range keys {
		g.Go(func() error {
			addrs, err := s.resolve(ctx, string(key))
			if err != nil {
				return err
			}
			snapshotMux.Lock()
			for _, addr := range addrs {
				snapshot.Observe(string(key), addr)
			}
			snapshotMux.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Source) resolve(ctx context.Context, hostname string) ([]string, error) {
	for _, qType := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := s.query(ctx, hostname, qType)
		if err != nil || len(addrs) != 0 {
			return addrs, err
		}
	}
	return nil, nil
}

func (s *Source) query(ctx context.Context, hostname string, qType uint16) ([]string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(hostname), qType)
	m.RecursionDesired = true

	in, _, err := s.Client.ExchangeContext(ctx, m, s.Server)
	if err != nil {
		return nil, fmt.Errorf("dns: query %s %s: %v", hostname, dns.TypeToString[qType], err)
	}
	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("dns: query %s %s: %w: %s", hostname, dns.TypeToString[qType], ErrResolverFailure, dns.RcodeToString[in.Rcode])
	}

	var addrs []string
	for _, rr := range in.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			addrs = append(addrs, rr.A.String())
		case *dns.AAAA:
			addrs = append(addrs, rr.AAAA.String())
		}
	}
	return addrs, nil
}

func (s *Source) Close() error { return nil }

func Build(config map[string]string) (core.Source, error) {
	var (
		server      = config["server"]
		timeout     = DefaultTimeout
		concurrency = DefaultConcurrency
		err         error
	)

	if server == "" {
		cc, err := dns.ClientConfigFromFile(resolvConf)
		if err != nil {
			return nil, fmt.Errorf("dns: no [server] given and %s unusable: %v", resolvConf, err)
		}
		if len(cc.Servers) == 0 {
			return nil, fmt.Errorf("dns: no [server] given and %s lists none", resolvConf)
		}
		server = net.JoinHostPort(cc.Servers[0], cc.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	if v := config["timeout"]; v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("dns: timeout: %v", err)
		}
	}
	if v := config["concurrency"]; v != "" {
		concurrency, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("dns: concurrency: %v", err)
		}
	}

	return New(server, timeout, concurrency), nil
}

func init() {
	core.SourceBuilders["dns"] = Build
}
