// Package authacl gates every request with IP allow/block lists (exact
// and CIDR) and a bearer-token check, evaluated in a fixed precedence
// order, wired in as net/http middleware.
package authacl

import (
	"net"
	"net/http"
	"strings"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/config"
)

// Policy is the subset of config.AuthConfig the gate consults, read
// fresh on every request via Provider so a config reload takes effect
// immediately.
type Policy = config.AuthConfig

// Provider supplies the live auth policy, matching *config.Manager's
// Get().Auth projection.
type Provider func() Policy

// WSPath identifies the WebSocket upgrade route, whose ?api_key= query
// parameter is an accepted credential alongside the Authorization
// header.
const WSPath = "/api/ws"

// Check evaluates the access policy for one request in a fixed
// precedence order, returning nil to admit or a *apperr.Error
// (Forbidden/Unauthorized) to deny:
//
//  1. a blocked IP is always denied, even with auth disabled
//  2. auth disabled admits everyone not already blocked
//  3. an allowed IP admits regardless of credentials
//  4. no configured API key admits everyone
//  5. a matching Bearer token admits
//  6. on the WS path only, a matching ?api_key= query parameter admits
//  7. otherwise, deny as unauthorized
func Check(policy Policy, remoteIP net.IP, authHeader, queryAPIKey, requestPath string) error {
	if matchesAny(policy.BlockedIPs, remoteIP) {
		return apperr.New(apperr.Forbidden, "blocked ip")
	}
	if !policy.Enabled {
		return nil
	}
	if matchesAny(policy.AllowedIPs, remoteIP) {
		return nil
	}
	if policy.APIKey == "" {
		return nil
	}
	if token, ok := bearerToken(authHeader); ok && token == policy.APIKey {
		return nil
	}
	if requestPath == WSPath && queryAPIKey != "" && queryAPIKey == policy.APIKey {
		return nil
	}
	return apperr.New(apperr.Unauthorized, "missing or invalid credentials")
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix)), true
}

// matchesAny reports whether ip matches any literal or addr/prefix
// entry in list. CIDR entries require address-family agreement and
// fail closed on malformed prefixes.
func matchesAny(list []string, ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if candidate := net.ParseIP(entry); candidate != nil && candidate.Equal(ip) {
				return true
			}
			continue
		}
		if cidrContains(entry, ip) {
			return true
		}
	}
	return false
}

func cidrContains(cidr string, ip net.IP) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	// net.ParseCIDR already rejects prefixes outside 0..=32 (IPv4) and
	// 0..=128 (IPv6); require address-family agreement explicitly so a
	// v4-mapped v6 literal never silently matches a v4 CIDR or vice
	// versa.
	v4, network4 := ip.To4(), network.IP.To4()
	if (v4 == nil) != (network4 == nil) {
		return false
	}
	return network.Contains(ip)
}

// Middleware wraps h with the access gate, evaluated on every request.
func Middleware(provider Provider) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r)
			policy := provider()
			if err := Check(policy, ip, r.Header.Get("Authorization"), r.URL.Query().Get("api_key"), r.URL.Path); err != nil {
				status := apperr.StatusFor(err)
				http.Error(w, err.Error(), status)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) net.IP {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	return net.ParseIP(host)
}
