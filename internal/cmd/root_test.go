package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2026-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before any command runs", func(t *testing.T) {
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		assert.Nil(t, GetAppIdentity())
	})

	t.Run("returns identity after PersistentPreRunE", func(t *testing.T) {
		orig := appIdentity
		defer func() { appIdentity = orig }()

		flagRegion, flagEndpoint, flagNoSignRequest = "us-west-2", "http://localhost:9000", true
		flagDelimiter = "/"
		flagMaxParallelism = 42
		defer func() {
			flagRegion, flagEndpoint, flagNoSignRequest = "", "", false
			flagMaxParallelism = 10000
		}()

		require := assert.New(t)
		err := rootPersistentPreRun(rootCmd, nil)
		require.NoError(err)

		got := GetAppIdentity()
		require.NotNil(got)
		require.Equal("us-west-2", got.Region)
		require.Equal("http://localhost:9000", got.Endpoint)
		require.True(got.NoSignRequest)
		require.Equal(42, got.MaxParallelism)
	})
}

func TestRootPersistentPreRun_RejectsBadFlags(t *testing.T) {
	origDelim, origMax := flagDelimiter, flagMaxParallelism
	defer func() {
		flagDelimiter, flagMaxParallelism = origDelim, origMax
	}()

	flagDelimiter = "//"
	flagMaxParallelism = 10
	assert.Error(t, rootPersistentPreRun(rootCmd, nil))

	flagDelimiter = "/"
	flagMaxParallelism = 0
	assert.Error(t, rootPersistentPreRun(rootCmd, nil))
}

func TestSetDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setDefaults()

	assert.Equal(t, "", viper.GetString("region"))
	assert.Equal(t, "/", viper.GetString("delimiter"))
	assert.Equal(t, 10000, viper.GetInt("max_parallelism"))
	assert.False(t, viper.GetBool("no_sign_request"))
	assert.Equal(t, "info", viper.GetString("log_level"))
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitInvalidUsage, exitCodeFor(errInvalidUsage))
	assert.Equal(t, ExitError, exitCodeFor(assert.AnError))
}
