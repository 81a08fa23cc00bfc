package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/amadeus/internal/util"
)

// EnvPrefix prefixes every environment override, e.g. AMADEUS_LLM or
// AMADEUS_SQLITE_CONNECTION_STRING.
const EnvPrefix = "AMADEUS"

const (
	configDirName  = ".amadeus"
	configFileName = "config.yaml"
)

// LoadOptions controls which layers Load applies.
type LoadOptions struct {
	// ExplicitFile is applied after the user and project files when set.
	ExplicitFile string
	// SkipEnv disables AMADEUS_* environment overrides.
	SkipEnv bool
	// ProjectDir is searched for .amadeus/config.yaml. Defaults to the working directory.
	ProjectDir string
}

// UserConfigPath returns the per-user config file location.
func UserConfigPath() string {
	return filepath.Join(util.GetXDGConfigDir("amadeus"), configFileName)
}

// ProjectConfigPath returns the project config file location under dir.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, configDirName, configFileName)
}

// Load builds Settings from defaults, the user file, the project file, an
// optional explicit file and the environment, in that order. Missing files
// are skipped; an explicit file that does not exist is an error.
func Load(opts LoadOptions) (Settings, error) {
	s := Defaults()

	if _, err := LoadFile(UserConfigPath(), &s); err != nil {
		return s, err
	}

	dir := opts.ProjectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err == nil {
			dir = wd
		}
	}
	if dir != "" {
		if _, err := LoadFile(ProjectConfigPath(dir), &s); err != nil {
			return s, err
		}
	}

	if opts.ExplicitFile != "" {
		found, err := LoadFile(opts.ExplicitFile, &s)
		if err != nil {
			return s, err
		}
		if !found {
			return s, fmt.Errorf("config file not found: %s", opts.ExplicitFile)
		}
	}

	if !opts.SkipEnv {
		if err := LoadEnv(&s); err != nil {
			return s, err
		}
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// LoadFile overlays the YAML file at path onto s. Keys absent from the file
// keep their current values. It reports whether the file existed.
func LoadFile(path string, s *Settings) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return true, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// LoadEnv overlays AMADEUS_* environment variables onto s.
func LoadEnv(s *Settings) error {
	if err := envconfig.Process(EnvPrefix, s); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}
