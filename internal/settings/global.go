package settings

import (
	"fmt"
	"sync"
)

var (
	mu      sync.RWMutex
	current = Defaults()
)

// Global returns a copy of the process-wide settings.
func Global() Settings {
	mu.RLock()
	defer mu.RUnlock()
	return current.Clone()
}

// Update applies fn to a copy of the global settings and commits the result
// only if it validates. On error the previous settings stay in effect.
func Update(fn func(*Settings)) error {
	mu.Lock()
	defer mu.Unlock()

	next := current.Clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	current = next
	return nil
}

// Replace swaps the global settings for s after validating it.
func Replace(s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	mu.Lock()
	current = s.Clone()
	mu.Unlock()
	return nil
}

// Reset restores the built-in defaults.
func Reset() {
	mu.Lock()
	current = Defaults()
	mu.Unlock()
}
