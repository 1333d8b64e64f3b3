package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quayside/s3glob/internal/observability"
)

// Exit codes. Kept as plain constants rather than an external taxonomy —
// this tool only ever distinguishes "ran fine" from "something went wrong",
// so usage errors share ExitError's code.
const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitInvalidUsage = 1
)

// versionInfo holds build metadata injected via SetVersionInfo, normally
// from -ldflags at build time. Zero-valued until main calls SetVersionInfo.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo records build metadata for `s3glob --version`.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate)
}

// Identity summarizes the effective connection settings for the current
// invocation, computed once in PersistentPreRunE so every subcommand and
// `doctor` report the same values.
type Identity struct {
	Region        string
	Endpoint      string
	NoSignRequest bool
	MaxParallelism int
}

// appIdentity is nil until the root command's PersistentPreRunE runs.
var appIdentity *Identity

// GetAppIdentity returns the resolved connection identity, or nil if no
// command has run its PersistentPreRunE yet (e.g. when called from a unit
// test that never invokes Execute).
func GetAppIdentity() *Identity {
	return appIdentity
}

var (
	flagRegion         string
	flagEndpoint       string
	flagDelimiter      string
	flagMaxParallelism int
	flagNoSignRequest  bool
	flagVerbose        int
	flagQuiet          bool
)

var rootCmd = &cobra.Command{
	Use:   "s3glob",
	Short: "List and download S3 objects matched by Unix-style glob patterns",
	Long: `s3glob lists and downloads objects from an S3-compatible object store
selected by a Unix-style glob pattern applied to object keys.

Example:
  s3glob ls my-bucket/logs/2024-*/app.log
  s3glob dl my-bucket/data/**/*.parquet ./out --path-mode from-first-glob`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: rootPersistentPreRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "AWS region (defaults to the SDK's standard resolution chain)")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "S3-compatible endpoint override")
	rootCmd.PersistentFlags().StringVar(&flagDelimiter, "delimiter", "/", "path delimiter used to segment glob patterns")
	rootCmd.PersistentFlags().IntVar(&flagMaxParallelism, "max-parallelism", 10000, "global cap on concurrent store calls and transfers")
	rootCmd.PersistentFlags().BoolVar(&flagNoSignRequest, "no-sign-request", false, "make unsigned (anonymous) requests, for public buckets")
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress all but warnings and errors")
}

func setDefaults() {
	viper.SetDefault("region", "")
	viper.SetDefault("endpoint", "")
	viper.SetDefault("delimiter", "/")
	viper.SetDefault("max_parallelism", 10000)
	viper.SetDefault("no_sign_request", false)
	viper.SetDefault("log_level", "info")
}

func rootPersistentPreRun(cmd *cobra.Command, args []string) error {
	verbosity := flagVerbose
	if flagQuiet {
		verbosity = -1
	}
	if err := observability.InitLogger(verbosity); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	if flagDelimiter == "" || len(flagDelimiter) != 1 {
		return fmt.Errorf("%w: --delimiter must be exactly one byte", errInvalidUsage)
	}
	if flagMaxParallelism <= 0 {
		return fmt.Errorf("%w: --max-parallelism must be positive", errInvalidUsage)
	}

	appIdentity = &Identity{
		Region:         flagRegion,
		Endpoint:       flagEndpoint,
		NoSignRequest:  flagNoSignRequest,
		MaxParallelism: flagMaxParallelism,
	}
	return nil
}

// errInvalidUsage marks an error as a usage error for exitCodeFor, distinct
// from a runtime/store failure.
var errInvalidUsage = fmt.Errorf("invalid usage")

// Execute runs the root command and returns the process exit code. main
// calls this directly so os.Exit happens in exactly one place.
func Execute() int {
	setDefaults()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "s3glob:", err)
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func exitCodeFor(err error) int {
	if isUsageError(err) {
		return ExitInvalidUsage
	}
	return ExitError
}

func isUsageError(err error) bool {
	for err != nil {
		if err == errInvalidUsage {
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
