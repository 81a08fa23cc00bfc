package util

import (
	"os"
	"path/filepath"
)

// GetXDGConfigDir returns $XDG_CONFIG_HOME/<app>, falling back to ~/.config/<app>.
func GetXDGConfigDir(app string) string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, app)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", app)
	}
	return filepath.Join(home, ".config", app)
}
