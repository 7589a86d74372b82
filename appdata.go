package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// AppDataDir returns an operating-system-specific data directory for the
// application. On Unix this is a dotted directory under $HOME; on macOS it
// lives under Application Support, and on Windows under %LOCALAPPDATA% (or
// %APPDATA% if roaming).
func AppDataDir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}
	appName = strings.TrimPrefix(appName, ".")

	home := os.Getenv("HOME")
	if home == "" {
		if u, err := os.UserHomeDir(); err == nil {
			home = u
		}
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, upperFirst(appName))
		}
	case "darwin":
		if home != "" {
			return filepath.Join(home, "Library", "Application Support", upperFirst(appName))
		}
	default:
		if home != "" {
			return filepath.Join(home, "."+appName)
		}
	}

	// Fall back to the current directory.
	return "."
}

func upperFirst(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
