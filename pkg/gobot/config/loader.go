package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingVariable is returned when a ${VAR:?message} reference is unset.
var ErrMissingVariable = errors.New("required environment variable not set")

// envVarPattern matches ${VAR}, ${VAR:-default}, ${VAR:?message} and $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// Load reads and parses a configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML. .env files are loaded and
// environment variables expanded before parsing.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var cfg *Config
	if isTOML(path) {
		cfg, err = ParseTOML([]byte(expanded))
	} else {
		cfg, err = Parse([]byte(expanded))
	}
	if err != nil {
		return nil, err
	}

	checkFilePermissions(path)
	return cfg, nil
}

// Parse parses YAML bytes into a Config, overlaying the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, cfg.Validate()
}

// ParseTOML parses TOML bytes into a Config, overlaying the defaults.
func ParseTOML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration values the bot cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" || strings.ContainsAny(c.Prefix, " \t\n") {
		return fmt.Errorf("invalid prefix %q: must be a single word", c.Prefix)
	}
	if c.ShutdownTimeout < 0 || c.CommandTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Reminder.MaxPerUser < 0 {
		return errors.New("reminder.max_per_user must not be negative")
	}
	return nil
}

// Save writes cfg as YAML with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"config.toml",
		"gobot.yaml",
		"gobot.toml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ---------- Internal ----------

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// loadEnvFiles loads .env files; existing variables win.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces variable references with their values. Unset plain
// references are left as-is; ${VAR:-d} falls back to d; ${VAR:?msg} fails.
func expandEnvVars(input string) (string, error) {
	var errs []error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := envVarPattern.FindStringSubmatch(match)
		name, op, arg := m[1], m[2], m[3]
		if name == "" {
			name = m[4]
		}

		val, ok := os.LookupEnv(name)
		switch {
		case ok && val != "":
			return val
		case op == ":-":
			return arg
		case op == ":?":
			msg := arg
			if msg == "" {
				msg = "required"
			}
			errs = append(errs, fmt.Errorf("%w: %s: %s", ErrMissingVariable, name, msg))
			return ""
		case ok:
			return val
		default:
			return match
		}
	})
	return out, errors.Join(errs...)
}

// checkFilePermissions warns if the config file is readable by others.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
