//go:build !windows

package autostart

import "errors"

var errNoRegistry = errors.New("the Windows registry is not available on this platform")

func enableWindows(string) error { return errNoRegistry }

func disableWindows() error { return errNoRegistry }

func isEnabledWindows() bool { return false }
