// Package autostart registers the mapping backend to start on login.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

// label names the login item on every platform
const label = "com.touchmap.backend"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        {{- range .Command}}
        <string>{{.}}</string>
        {{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=touchmap backend
Comment=Serves the touch mapping document
Exec={{.Exec}}
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

var (
	plistTmpl   = template.Must(template.New("plist").Parse(macLaunchAgentPlist))
	desktopTmpl = template.Must(template.New("desktop").Parse(xdgDesktopEntry))
)

// Entry is a login item running Exec with Args
type Entry struct {
	Exec string
	Args []string

	goos string
	home string
}

// New creates an entry running the current executable with args
func New(args ...string) (*Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Entry{Exec: execPath, Args: args, goos: runtime.GOOS, home: home}, nil
}

// Command returns the executable followed by its arguments
func (e *Entry) Command() []string {
	return append([]string{e.Exec}, e.Args...)
}

// Enable enables auto-start on login
func (e *Entry) Enable() error {
	switch e.goos {
	case "darwin":
		return e.writeFile(e.plistPath(), plistTmpl, struct {
			Label   string
			Command []string
		}{label, e.Command()})
	case "windows":
		return enableWindows(e.commandLine())
	default:
		return e.writeFile(e.desktopPath(), desktopTmpl, struct{ Exec string }{e.commandLine()})
	}
}

// Disable disables auto-start on login. Disabling twice is not an error.
func (e *Entry) Disable() error {
	var path string
	switch e.goos {
	case "darwin":
		path = e.plistPath()
	case "windows":
		return disableWindows()
	default:
		path = e.desktopPath()
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsEnabled checks if auto-start is enabled
func (e *Entry) IsEnabled() bool {
	switch e.goos {
	case "darwin":
		return exists(e.plistPath())
	case "windows":
		return isEnabledWindows()
	default:
		return exists(e.desktopPath())
	}
}

func (e *Entry) plistPath() string {
	return filepath.Join(e.home, "Library", "LaunchAgents", label+".plist")
}

// desktopPath is the XDG autostart location, honoring XDG_CONFIG_HOME
func (e *Entry) desktopPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(e.home, ".config")
	}
	return filepath.Join(dir, "autostart", "touchmap-backend.desktop")
}

// commandLine quotes arguments containing spaces
func (e *Entry) commandLine() string {
	parts := e.Command()
	for i, p := range parts {
		if strings.ContainsAny(p, " \t") {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, " ")
}

func (e *Entry) writeFile(path string, tmpl *template.Template, data interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
