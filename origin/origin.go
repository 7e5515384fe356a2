// origin/origin.go

// Package origin decides which browser origins may talk to the BFF.
//
// Production origins must match a configured value exactly. Development
// clients are served from localhost, loopback, or private addresses with
// ephemeral ports, so those hosts are matched by pattern with the port left
// free. With no origins configured at all, every origin is accepted.
package origin

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Policy is the compiled allow decision for CORS. Built once at startup and
// read-only afterwards.
type Policy struct {
	explicit map[string]struct{}
	dynamic  *regexp.Regexp
	allowAll bool
}

// Build compiles a Policy from the configured origin list.
//
// Per configured origin:
//   - Unparseable origins or non-http(s) schemes are kept as opaque literals
//     (fail-open to exact string matching).
//   - localhost, loopback, and private-range hosts are eligible for
//     dynamic-port matching: a pattern anchored to scheme://host with an
//     optional :port and trailing slash. If the configured origin carried an
//     explicit port, the literal is also kept so the exact value still
//     matches.
//   - Everything else is an explicit literal.
func Build(origins []string) (*Policy, error) {
	p := &Policy{explicit: make(map[string]struct{})}

	var patterns []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}

		u, err := url.Parse(o)
		if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
			p.explicit[o] = struct{}{}
			continue
		}

		host := u.Hostname()
		if dynamicPortEligible(host) {
			escaped := regexp.QuoteMeta(u.Scheme + "://" + host)
			patterns = append(patterns, fmt.Sprintf(`^%s(?::\d+)?/?$`, escaped))
			if u.Port() != "" {
				p.explicit[o] = struct{}{}
			}
		} else {
			p.explicit[o] = struct{}{}
		}
	}

	if len(patterns) > 0 {
		re, err := regexp.Compile(strings.Join(patterns, "|"))
		if err != nil {
			return nil, fmt.Errorf("compile origin patterns: %w", err)
		}
		p.dynamic = re
	}

	if len(p.explicit) == 0 && p.dynamic == nil {
		p.allowAll = true
	}

	return p, nil
}

// dynamicPortEligible reports whether host is served from a developer
// machine: the localhost name, or an IP in a loopback or private range.
func dynamicPortEligible(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// Allow reports whether the request origin is accepted.
func (p *Policy) Allow(origin string) bool {
	if p.allowAll {
		return true
	}
	if _, ok := p.explicit[origin]; ok {
		return true
	}
	return p.dynamic != nil && p.dynamic.MatchString(origin)
}

// AllowAll reports whether the policy accepts any origin (no origins were
// configured).
func (p *Policy) AllowAll() bool {
	return p.allowAll
}
