// Package osutils holds the OS integration the backend needs to be reachable
// from the device: an inbound firewall rule for its port on Windows.
package osutils

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ruleName is the display name of the inbound rule
const ruleName = "touchmap backend"

// ListenPort extracts the TCP port of a listen address such as "0.0.0.0:61070".
// Loopback addresses need no rule and report ok=false.
func ListenPort(addr string) (port int, ok bool, err error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, false, err
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return 0, false, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	if host == "localhost" {
		return port, false, nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return port, false, nil
	}
	return port, true, nil
}

// ruleMatches reports whether netsh output shows an allow rule for port
func ruleMatches(output string, port int) bool {
	return strings.Contains(output, ruleName) &&
		strings.Contains(output, strconv.Itoa(port)) &&
		strings.Contains(output, "Allow")
}

// firewallScript replaces the rule with one allowing inbound TCP on port.
// No -Program restriction, so the rule survives moving the executable.
func firewallScript(port int) string {
	return fmt.Sprintf(
		"Remove-NetFirewallRule -DisplayName '%s' -ErrorAction SilentlyContinue; New-NetFirewallRule -DisplayName '%s' -Direction Inbound -LocalPort %d -Protocol TCP -Action Allow -Profile Any",
		ruleName, ruleName, port,
	)
}
