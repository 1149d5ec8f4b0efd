//go:build windows

package osutils

import (
	"fmt"
	"log"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// IsAdmin checks if the current process has administrative privileges
func IsAdmin() bool {
	var token windows.Token
	h, _ := windows.GetCurrentProcess()
	if err := windows.OpenProcessToken(h, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()

	var sid *windows.SID
	err := windows.AllocateAndInitializeSid(
		&windows.SECURITY_NT_AUTHORITY,
		2,
		windows.SECURITY_BUILTIN_DOMAIN_RID,
		windows.DOMAIN_ALIAS_RID_ADMINS,
		0, 0, 0, 0, 0, 0,
		&sid,
	)
	if err != nil {
		return false
	}
	defer windows.FreeSid(sid)

	member, err := token.IsMember(sid)
	if err != nil {
		return false
	}
	return member
}

// EnsureFirewallRule creates the inbound rule for port unless a matching one
// exists. Without admin rights it asks for elevation through UAC.
func EnsureFirewallRule(port int) error {
	log.Printf("Firewall: Checking rule '%s' on port %d...", ruleName, port)

	output, err := exec.Command("netsh", "advfirewall", "firewall", "show", "rule", "name="+ruleName).CombinedOutput()
	if err == nil && ruleMatches(string(output), port) {
		log.Printf("Firewall: Rule '%s' already allows port %d", ruleName, port)
		return nil
	}

	script := firewallScript(port)
	if IsAdmin() {
		if out, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput(); err != nil {
			return fmt.Errorf("failed to create firewall rule: %w (Output: %s)", err, string(out))
		}
		log.Printf("Firewall: Allowed inbound TCP on port %d", port)
		return nil
	}

	log.Println("Firewall: Not elevated, requesting UAC elevation...")
	verbPtr, _ := syscall.UTF16PtrFromString("runas")
	exePtr, _ := syscall.UTF16PtrFromString("powershell.exe")
	argPtr, _ := syscall.UTF16PtrFromString(fmt.Sprintf("-NoProfile -WindowStyle Hidden -Command \"%s\"", script))
	if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, nil, 0); err != nil {
		return fmt.Errorf("failed to launch elevated powershell: %w", err)
	}
	return nil
}
