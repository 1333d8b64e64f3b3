// Package config loads s3glob's runtime configuration from defaults, an
// optional project config file, S3GLOB_* environment variables, and
// caller-supplied runtime overrides, in that order of increasing priority.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration for a single s3glob
// invocation. Overrides passed to Load win over a config file or
// environment variable. The CLI calls Load without overrides and reads
// only JobsDir from the result; its global flags are read directly from
// cobra, and log_level and jobs_dir have no flag.
type Config struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	Delimiter      string `mapstructure:"delimiter"`
	MaxParallelism int    `mapstructure:"max_parallelism"`
	NoSignRequest  bool   `mapstructure:"no_sign_request"`
	LogLevel       string `mapstructure:"log_level"`
	JobsDir        string `mapstructure:"jobs_dir"`
}

// appIdentity is the minimal identity needed to compute env var names and
// locate a project config file. It is set once by Load and read by
// getEnvSpecs/getUserConfigPaths; both report empty results before the
// first Load call.
type appIdentity struct {
	envPrefix string
}

var (
	configMu    sync.Mutex
	identity    *appIdentity
	loadedConfig *Config
)

// envSpec describes one environment variable binding: Name is the variable
// as seen in the process environment, Path is the matching viper config key.
type envSpec struct {
	Name string
	Path string
}

const envPrefix = "S3GLOB"

// Load resolves configuration in priority order: built-in defaults, an
// optional project config file (s3glob.yaml/.json/.toml discovered by
// findProjectRoot), S3GLOB_* environment variables, then overrides (applied
// last-wins, in the order given — typically one map built from parsed CLI
// flags).
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	configMu.Lock()
	identity = &appIdentity{envPrefix: envPrefix}
	configMu.Unlock()

	v := viper.New()
	setDefaults(v)

	if root, err := findProjectRoot(); err == nil {
		v.SetConfigName("s3glob")
		v.AddConfigPath(root)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("config: reading project config: %w", err)
			}
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", spec.Name, err)
		}
	}

	for _, override := range overrides {
		for key, val := range override {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	configMu.Lock()
	loadedConfig = &cfg
	configMu.Unlock()

	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil if Load
// has never been called.
func GetConfig() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return loadedConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region", "us-east-1")
	v.SetDefault("endpoint", "")
	v.SetDefault("delimiter", "/")
	v.SetDefault("max_parallelism", 10000)
	v.SetDefault("no_sign_request", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("jobs_dir", defaultJobsDir())
}

func defaultJobsDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "s3glob", "jobs")
	}
	return filepath.Join(os.TempDir(), "s3glob", "jobs")
}

// getEnvSpecs returns the environment variable bindings for the current
// appIdentity. Before the first Load call, identity is nil and this
// returns an empty slice rather than panicking, so tooling that inspects
// the env surface (e.g. `s3glob doctor`) can call it safely at any time.
func getEnvSpecs() []envSpec {
	configMu.Lock()
	id := identity
	configMu.Unlock()
	if id == nil {
		return nil
	}
	prefix := id.envPrefix + "_"
	return []envSpec{
		{Name: prefix + "REGION", Path: "region"},
		{Name: prefix + "ENDPOINT", Path: "endpoint"},
		{Name: prefix + "DELIMITER", Path: "delimiter"},
		{Name: prefix + "MAX_PARALLELISM", Path: "max_parallelism"},
		{Name: prefix + "NO_SIGN_REQUEST", Path: "no_sign_request"},
		{Name: prefix + "LOG_LEVEL", Path: "log_level"},
		{Name: prefix + "JOBS_DIR", Path: "jobs_dir"},
	}
}

// getUserConfigPaths returns directories searched for a project config
// file, given the current appIdentity. Empty before the first Load call.
func getUserConfigPaths() []string {
	configMu.Lock()
	id := identity
	configMu.Unlock()
	if id == nil {
		return nil
	}
	root, err := findProjectRoot()
	if err != nil {
		return nil
	}
	return []string{root}
}

// boundaryEnvVars are checked, in order, for a CI-supplied workspace root
// hint. CI runners frequently check out the repository outside $HOME,
// which defeats a pure walk-up-to-$HOME search; an explicit hint lets
// findProjectRoot stop at the right place without guessing.
var boundaryEnvVars = []string{
	"S3GLOB_WORKSPACE_ROOT",
	"GITHUB_WORKSPACE",
	"CI_PROJECT_DIR",
	"WORKSPACE",
}

// findProjectRoot walks up from the current working directory looking for
// a go.mod, stopping at $HOME (or, under CI, at a hinted workspace root
// from boundaryEnvVars) to avoid wandering into unrelated ancestor
// directories.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("config: getwd: %w", err)
	}

	boundary := ""
	if os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true" {
		for _, name := range boundaryEnvVars {
			val := os.Getenv(name)
			if val == "" || !filepath.IsAbs(val) {
				continue
			}
			if rel, err := filepath.Rel(val, cwd); err == nil && !hasParentPrefix(rel) {
				boundary = val
				break
			}
		}
	}
	if boundary == "" {
		if home, err := os.UserHomeDir(); err == nil {
			boundary = home
		}
	}

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if boundary != "" && dir == boundary {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("config: no go.mod found above %s", cwd)
}

func hasParentPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}
