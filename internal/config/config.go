// Package config provides application settings for the editor and the mapping backend.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Editor contains settings of the local editor UI
	Editor EditorConfig `json:"editor" yaml:"editor"`

	// Backend contains settings of the mapping backend that the touch runtime reads from
	Backend BackendConfig `json:"backend" yaml:"backend"`
}

// EditorConfig contains settings of the local editor UI
type EditorConfig struct {
	// Listen is the address of the editor page (default: 127.0.0.1:61071)
	Listen string `json:"listen" yaml:"listen"`

	// RemoteURL is the base URL of the backend serving /configure/get and /configure/set
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// APIToken is sent as a bearer token to the backend (optional)
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// StatusMillis is how long an export status stays visible
	StatusMillis int `json:"status_ms" yaml:"status_ms"`

	// ScreenshotDelayMillis is the wait before a delayed screenshot refresh
	ScreenshotDelayMillis int `json:"screenshot_delay_ms" yaml:"screenshot_delay_ms"`

	// OpenBrowser opens the editor page on start
	OpenBrowser bool `json:"open_browser" yaml:"open_browser"`

	// ShowTray shows the tray menu
	ShowTray bool `json:"show_tray" yaml:"show_tray"`
}

// BackendConfig contains settings of the mapping backend
type BackendConfig struct {
	// Listen is the address of the backend (default: 0.0.0.0:61070)
	Listen string `json:"listen" yaml:"listen"`

	// MappingFile is where the document is stored; empty means the per-user data dir
	MappingFile string `json:"mapping_file,omitempty" yaml:"mapping_file,omitempty"`

	// ScreenshotFile is served at /screen.png; empty serves the embedded screenshot
	ScreenshotFile string `json:"screenshot_file,omitempty" yaml:"screenshot_file,omitempty"`

	// APIToken is an optional authentication token for backend requests
	APIToken string `json:"api_token,omitempty" yaml:"api_token,omitempty"`

	// WatchFile re-broadcasts the mapping file when it is edited outside the backend
	WatchFile bool `json:"watch_file" yaml:"watch_file"`
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Editor: EditorConfig{
			Listen:                "127.0.0.1:61071",
			RemoteURL:             "http://127.0.0.1:61070",
			StatusMillis:          1000,
			ScreenshotDelayMillis: 5000,
			OpenBrowser:           true,
			ShowTray:              true,
		},
		Backend: BackendConfig{
			Listen:    "0.0.0.0:61070",
			WatchFile: true,
		},
	}
}

// Validate reports settings that cannot work
func (c *Config) Validate() error {
	var problems []string
	if c.Editor.Listen == "" {
		problems = append(problems, "editor.listen is empty")
	}
	if c.Backend.Listen == "" {
		problems = append(problems, "backend.listen is empty")
	}
	if c.Editor.StatusMillis < 0 {
		problems = append(problems, "editor.status_ms is negative")
	}
	if c.Editor.ScreenshotDelayMillis < 0 {
		problems = append(problems, "editor.screenshot_delay_ms is negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
}

// NewManager creates a configuration manager using the per-user config path
func NewManager() (*Manager, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerWithPath(configPath), nil
}

// NewManagerWithPath creates a configuration manager for an explicit file.
// Files ending in .yaml or .yml are read and written as YAML, anything else as JSON.
func NewManagerWithPath(path string) *Manager {
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
	}
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "touchmap")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "touchmap")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "touchmap")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configPath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}

	m.config = cfg
	onChanged := m.onChanged
	m.mu.Unlock()

	log.Printf("Config: Loaded %s", m.configPath)
	if onChanged != nil {
		onChanged()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data []byte
	var err error
	if m.isYAML() {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	log.Printf("Config: Saving configuration to %s (%d bytes)", m.configPath, len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// Set updates the configuration
func (m *Manager) Set(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = &config
	onChanged := m.onChanged
	m.mu.Unlock()
	if onChanged != nil {
		onChanged()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
