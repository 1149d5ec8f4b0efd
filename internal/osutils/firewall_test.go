package osutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr string
		port int
		ok   bool
	}{
		{"0.0.0.0:61070", 61070, true},
		{":8080", 8080, true},
		{"192.168.1.4:61070", 61070, true},
		{"127.0.0.1:61071", 61071, false},
		{"localhost:61071", 61071, false},
		{"[::1]:9000", 9000, false},
	}
	for _, tt := range tests {
		port, ok, err := ListenPort(tt.addr)
		require.NoError(t, err, tt.addr)
		assert.Equal(t, tt.port, port, tt.addr)
		assert.Equal(t, tt.ok, ok, tt.addr)
	}

	_, _, err := ListenPort("61070")
	assert.Error(t, err)
	_, _, err = ListenPort("host:http")
	assert.Error(t, err)
}

func TestRuleMatches(t *testing.T) {
	output := "Rule Name:   touchmap backend\nLocalPort:   61070\nAction:      Allow\n"
	assert.True(t, ruleMatches(output, 61070))
	assert.False(t, ruleMatches(output, 8080))
	assert.False(t, ruleMatches("No rules match the specified criteria.", 61070))
}

func TestFirewallScript(t *testing.T) {
	script := firewallScript(61070)
	assert.Contains(t, script, "-LocalPort 61070")
	assert.Contains(t, script, "New-NetFirewallRule -DisplayName 'touchmap backend'")
}
