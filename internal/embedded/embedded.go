// Package embedded provides the default mapping document and its reference
// screenshot, compiled into the binary.
// The default is used whenever no document can be loaded from the runtime.
package embedded

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"touchmap/internal/keymap"
)

//go:embed defaults/*
var defaultsFS embed.FS

var (
	defaultDoc  keymap.Document
	defaultOnce sync.Once
	defaultErr  error
)

// Default returns a copy of the embedded default document with its screenshot
// attached as a data URL. The document is decoded once on first call.
func Default() (keymap.Document, error) {
	defaultOnce.Do(func() {
		defaultDoc, defaultErr = loadDefault()
	})
	if defaultErr != nil {
		return keymap.Document{}, defaultErr
	}
	return defaultDoc.Clone(), nil
}

// Screenshot returns the embedded reference screenshot (PNG)
func Screenshot() []byte {
	data, err := defaultsFS.ReadFile("defaults/screen.png")
	if err != nil {
		// The file is compiled in; a read failure means a broken build
		panic(err)
	}
	return data
}

// loadDefault decodes default.json and attaches screen.png
func loadDefault() (keymap.Document, error) {
	data, err := defaultsFS.ReadFile("defaults/default.json")
	if err != nil {
		return keymap.Document{}, fmt.Errorf("failed to read embedded default: %w", err)
	}
	doc, err := keymap.Decode(data)
	if err != nil {
		return keymap.Document{}, fmt.Errorf("embedded default: %w", err)
	}

	png := Screenshot()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return keymap.Document{}, fmt.Errorf("embedded screenshot: %w", err)
	}
	doc.Screen.Size = keymap.Size{W: cfg.Width, H: cfg.Height}
	doc.Img = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return doc, nil
}

// WriteDefault writes the default document to path unless a file already exists there.
// It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	doc, err := Default()
	if err != nil {
		return false, err
	}
	data, err := keymap.Encode(doc)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	log.Printf("Embedded: Writing default mapping to %s (%d bytes)", path, len(data))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// DataDir returns the per-user directory where the backend keeps its mapping file
func DataDir() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "touchmap", "data")
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		dataDir = filepath.Join(localAppData, "touchmap", "data")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "touchmap"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share", "touchmap")
	}

	return dataDir, nil
}
