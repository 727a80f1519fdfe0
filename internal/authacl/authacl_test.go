package authacl

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/config"
)

func TestBlockedIPWinsEvenWithValidTokenAndAuthDisabled(t *testing.T) {
	policy := config.AuthConfig{
		Enabled:    false,
		APIKey:     "K",
		BlockedIPs: []string{"10.0.0.1"},
	}
	err := Check(policy, net.ParseIP("10.0.0.1"), "Bearer K", "", "/api/status")
	assert.Error(t, err)
	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func TestAuthDisabledAdmitsByDefault(t *testing.T) {
	policy := config.AuthConfig{Enabled: false}
	err := Check(policy, net.ParseIP("203.0.113.5"), "", "", "/api/status")
	assert.NoError(t, err)
}

func TestAllowedIPBypassesTokenCheck(t *testing.T) {
	policy := config.AuthConfig{
		Enabled:    true,
		APIKey:     "K",
		AllowedIPs: []string{"192.168.1.0/24"},
	}
	err := Check(policy, net.ParseIP("192.168.1.42"), "", "", "/api/status")
	assert.NoError(t, err)
}

func TestNoAPIKeyConfiguredAdmits(t *testing.T) {
	policy := config.AuthConfig{Enabled: true}
	err := Check(policy, net.ParseIP("203.0.113.5"), "", "", "/api/status")
	assert.NoError(t, err)
}

func TestBearerTokenAdmits(t *testing.T) {
	policy := config.AuthConfig{Enabled: true, APIKey: "secret"}
	err := Check(policy, net.ParseIP("203.0.113.5"), "Bearer secret", "", "/api/status")
	assert.NoError(t, err)
}

func TestWSQueryAPIKeyAdmitsOnlyOnWSPath(t *testing.T) {
	policy := config.AuthConfig{Enabled: true, APIKey: "secret"}

	err := Check(policy, net.ParseIP("203.0.113.5"), "", "secret", WSPath)
	assert.NoError(t, err)

	err = Check(policy, net.ParseIP("203.0.113.5"), "", "secret", "/api/status")
	assert.Error(t, err)
}

func TestMissingCredentialsUnauthorized(t *testing.T) {
	policy := config.AuthConfig{Enabled: true, APIKey: "secret"}
	err := Check(policy, net.ParseIP("203.0.113.5"), "", "", "/api/status")
	assert.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestCIDRMembershipMatchesTopPrefixBitsAndFamily(t *testing.T) {
	cases := []struct {
		name    string
		cidr    string
		ip      string
		matches bool
	}{
		{"exact v4 network", "10.0.0.0/24", "10.0.0.200", true},
		{"outside v4 network", "10.0.0.0/24", "10.0.1.1", false},
		{"v4 host route", "10.0.0.5/32", "10.0.0.5", true},
		{"v6 network", "2001:db8::/32", "2001:db8:1::1", true},
		{"v6 outside network", "2001:db8::/32", "2001:db9::1", false},
		{"v4 cidr never matches distinct v6 literal", "10.0.0.0/8", "2001:db8::10.1.1.1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := cidrContains(tc.cidr, net.ParseIP(tc.ip))
			assert.Equal(t, tc.matches, got)
		})
	}
}

func TestOutOfRangePrefixFailsClosed(t *testing.T) {
	assert.False(t, cidrContains("10.0.0.0/33", net.ParseIP("10.0.0.1")))
	assert.False(t, cidrContains("2001:db8::/200", net.ParseIP("2001:db8::1")))
}
