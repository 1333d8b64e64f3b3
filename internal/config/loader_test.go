package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findRepoRootForTest(t *testing.T) string {
	cwd, err := os.Getwd()
	require.NoError(t, err)

	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	t.Fatalf("could not locate repo root containing go.mod from %s", cwd)
	return ""
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Regression test: in CI containers the repo checkout may be outside
	// $HOME. When $HOME is not an ancestor of the repo, the default home
	// boundary can prevent repo root discovery unless a CI boundary hint
	// is applied.
	t.Run("CIBoundaryHint", func(t *testing.T) {
		repoRoot := findRepoRootForTest(t)
		t.Setenv("HOME", t.TempDir())
		t.Setenv("CI", "true")
		t.Setenv("S3GLOB_WORKSPACE_ROOT", repoRoot)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)
	})

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "us-east-1", cfg.Region)
		assert.Equal(t, "", cfg.Endpoint)
		assert.Equal(t, "/", cfg.Delimiter)
		assert.Equal(t, 10000, cfg.MaxParallelism)
		assert.False(t, cfg.NoSignRequest)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.NotEmpty(t, cfg.JobsDir)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"region":          "eu-west-1",
			"max_parallelism": 500,
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "eu-west-1", cfg.Region)
		assert.Equal(t, 500, cfg.MaxParallelism)

		// Non-overridden values remain default.
		assert.Equal(t, "/", cfg.Delimiter)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("S3GLOB_REGION", "ap-south-1")
		t.Setenv("S3GLOB_LOG_LEVEL", "warn")
		t.Setenv("S3GLOB_NO_SIGN_REQUEST", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "ap-south-1", cfg.Region)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.True(t, cfg.NoSignRequest)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("S3GLOB_MAX_PARALLELISM", "4000")

		// Runtime override should win over the env var.
		overrides := map[string]any{"max_parallelism": 250}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 250, cfg.MaxParallelism)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	t.Run("GetConfigReturnsLoadedConfig", func(t *testing.T) {
		retrieved := GetConfig()
		assert.NotNil(t, retrieved)
		assert.Equal(t, cfg.Region, retrieved.Region)
		assert.Equal(t, cfg.MaxParallelism, retrieved.MaxParallelism)
	})
}

func TestEnvSpecs(t *testing.T) {
	ctx := context.Background()
	_, err := Load(ctx)
	require.NoError(t, err)

	specs := getEnvSpecs()
	assert.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
	}

	assert.True(t, names["S3GLOB_REGION"])
	assert.True(t, names["S3GLOB_ENDPOINT"])
	assert.True(t, names["S3GLOB_MAX_PARALLELISM"])
	assert.True(t, names["S3GLOB_LOG_LEVEL"])
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg1)

	overrides := map[string]any{"max_parallelism": cfg1.MaxParallelism + 1000}

	cfg2, err := Load(ctx, overrides)
	require.NoError(t, err)
	require.NotNil(t, cfg2)

	assert.Equal(t, cfg1.MaxParallelism+1000, cfg2.MaxParallelism)

	current := GetConfig()
	assert.Equal(t, cfg2.MaxParallelism, current.MaxParallelism)
}

// resetIdentity clears package state for isolated tests of the nil-identity path.
func resetIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	identity = nil
	loadedConfig = nil
}

func TestGetEnvSpecsNilIdentity(t *testing.T) {
	resetIdentity()
	defer func() {
		ctx := context.Background()
		_, _ = Load(ctx)
	}()

	assert.Empty(t, getEnvSpecs())
	assert.Empty(t, getUserConfigPaths())
}

func TestFindProjectRootCIBoundaryEdgeCases(t *testing.T) {
	repoRoot := findRepoRootForTest(t)

	t.Run("CITrueButEmptyBoundaryVars", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("S3GLOB_WORKSPACE_ROOT", "")
		t.Setenv("GITHUB_WORKSPACE", "")
		t.Setenv("CI_PROJECT_DIR", "")
		t.Setenv("WORKSPACE", "")

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("CITrueWithRelativeBoundary", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("S3GLOB_WORKSPACE_ROOT", "./relative/path")

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("CITrueWithNonexistentBoundary", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("S3GLOB_WORKSPACE_ROOT", "/nonexistent/path/that/does/not/exist")

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("CITrueWithBoundaryNotContainingCwd", func(t *testing.T) {
		t.Setenv("CI", "true")
		t.Setenv("S3GLOB_WORKSPACE_ROOT", os.TempDir())

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.NotEmpty(t, root)
	})

	t.Run("GitHubActionsEnvVar", func(t *testing.T) {
		t.Setenv("GITHUB_ACTIONS", "true")
		t.Setenv("GITHUB_WORKSPACE", repoRoot)

		root, err := findProjectRoot()
		require.NoError(t, err)
		assert.Equal(t, repoRoot, root)
	})
}

func TestEnvSpecsPrefixHandling(t *testing.T) {
	ctx := context.Background()
	_, err := Load(ctx)
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	for _, spec := range specs {
		assert.Contains(t, spec.Name, "S3GLOB_")
		assert.NotEmpty(t, spec.Path)
	}
}
