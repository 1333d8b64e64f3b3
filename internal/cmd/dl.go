package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quayside/s3glob/internal/config"
	"github.com/quayside/s3glob/internal/observability"
	"github.com/quayside/s3glob/pkg/download"
	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/glob"
	"github.com/quayside/s3glob/pkg/jobregistry"
	"github.com/quayside/s3glob/pkg/output"
	"github.com/quayside/s3glob/pkg/pathremap"
	"github.com/quayside/s3glob/pkg/planner"
	"github.com/quayside/s3glob/pkg/provider"
)

var (
	dlPathMode  string
	dlFlatten   bool
	dlRateLimit float64
)

var dlCmd = &cobra.Command{
	Use:   "dl <pattern> <dest>",
	Short: "Download objects matching a glob pattern",
	Args:  cobra.ExactArgs(2),
	RunE:  runDl,
}

func init() {
	rootCmd.AddCommand(dlCmd)
	dlCmd.Flags().StringVar(&dlPathMode, "path-mode", string(pathremap.FromFirstGlob), "local path policy: absolute|from-first-glob|shortest")
	dlCmd.Flags().BoolVar(&dlFlatten, "flatten", false, "write every matched object directly into dest, dropping directory structure")
	dlCmd.Flags().Float64Var(&dlRateLimit, "rate-limit", 0, "aggregate download rate limit in bytes/sec, 0 for unlimited")
}

func runDl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rawPattern, dest := args[0], args[1]

	uri, err := ParseURI(rawPattern)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}
	policy := pathremap.Policy(dlPathMode)
	switch policy {
	case pathremap.Absolute, pathremap.FromFirstGlob, pathremap.Shortest:
	default:
		return fmt.Errorf("%w: unsupported --path-mode %q", errInvalidUsage, dlPathMode)
	}

	store, err := openStore(ctx, uri.Bucket)
	if err != nil {
		return fmt.Errorf("connecting to bucket %s: %w", uri.Bucket, err)
	}
	defer func() { _ = store.Close() }()

	pattern := uri.Pattern
	if pattern == "" {
		pattern = uri.Key
	}
	delimiter := []byte(flagDelimiter)[0]

	segments, err := glob.Parse(pattern, delimiter)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}
	regex, err := glob.Compile(segments, delimiter)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}

	plan, err := planner.Plan(ctx, store, segments, delimiter, flagMaxParallelism)
	if err != nil {
		return fmt.Errorf("planning %s: %w", pattern, err)
	}

	items, _, errCh := enumerate.Run(ctx, store, plan, regex, delimiter, flagMaxParallelism)

	// Buffered rather than streamed straight into the orchestrator: the
	// "shortest" path-mode needs the complete match set before it can
	// compute the common prefix to strip, and buffering first keeps every
	// path-mode on one code path.
	var matches []provider.ObjectSummary
	var prefixHits int
	writer := output.NewJSONLWriter(os.Stdout)
	defer func() { _ = writer.Close() }()
	for item := range items {
		if item.Kind == enumerate.PrefixKind {
			prefixHits++
			_ = writer.WritePrefix(ctx, &output.PrefixRecord{Prefix: item.Prefix})
			continue
		}
		matches = append(matches, item.Object)
	}
	if enumErr := <-errCh; enumErr != nil {
		return fmt.Errorf("listing %s: %w", pattern, enumErr)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no objects matched %s", rawPattern)
	}

	prefixToStrip := pathremap.PrefixToStrip(pattern, policy, delimiter, matches)

	var limiter *rate.Limiter
	if dlRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(dlRateLimit), int(dlRateLimit))
	}

	orch := download.New(store, download.Config{
		BaseDir:        dest,
		PrefixToStrip:  prefixToStrip,
		Delimiter:      delimiter,
		Flatten:        dlFlatten,
		MaxParallelism: flagMaxParallelism,
		RateLimiter:    limiter,
		Logger:         observability.CLILogger,
	})

	jobID := uuid.New().String()
	registry := jobregistry.NewStore(jobsDirFor(ctx))
	startedAt := time.Now()
	_ = registry.Write(&jobregistry.JobRecord{
		JobID:     jobID,
		State:     jobregistry.JobStateRunning,
		Pattern:   rawPattern,
		Dest:      dest,
		PathMode:  dlPathMode,
		PID:       os.Getpid(),
		CreatedAt: startedAt,
		StartedAt: &startedAt,
		Identity: &jobregistry.EffectiveIdentity{
			Region:        flagRegion,
			EndpointHost:  flagEndpoint,
			NoSignRequest: flagNoSignRequest,
		},
	})

	replay := make(chan enumerate.Item, len(matches))
	for _, obj := range matches {
		replay <- enumerate.Item{Kind: enumerate.ObjectKind, Object: obj}
	}
	close(replay)

	notifications, stats := orch.Run(ctx, replay)
	for n := range notifications {
		if n.Kind == download.ObjectDownloaded {
			_ = writer.WriteTransfer(ctx, &output.TransferRecord{Path: n.Path, Done: true})
		}
	}

	endedAt := time.Now()
	state := jobregistry.JobStateSuccess
	if stats.Errors.Load() > 0 {
		state = jobregistry.JobStatePartial
	}
	_ = registry.Write(&jobregistry.JobRecord{
		JobID:             jobID,
		State:             state,
		Pattern:           rawPattern,
		Dest:              dest,
		PathMode:          dlPathMode,
		PID:               os.Getpid(),
		CreatedAt:         startedAt,
		StartedAt:         &startedAt,
		EndedAt:           &endedAt,
		ObjectsDownloaded: stats.ObjectsDownloaded.Load(),
		BytesDownloaded:   stats.BytesDownloaded.Load(),
		Errors:            stats.Errors.Load(),
		Identity: &jobregistry.EffectiveIdentity{
			Region:        flagRegion,
			EndpointHost:  flagEndpoint,
			NoSignRequest: flagNoSignRequest,
		},
	})

	summary := &output.SummaryRecord{
		ObjectsMatched:  int64(len(matches)),
		BytesTotal:      stats.BytesDownloaded.Load(),
		Duration:        endedAt.Sub(startedAt),
		DurationHuman:   endedAt.Sub(startedAt).String(),
		Errors:          stats.Errors.Load(),
	}
	_ = writer.WriteSummary(ctx, summary)

	observability.CLILogger.Info("dl completed",
		zap.String("job_id", jobID),
		zap.Int("objects_matched", len(matches)),
		zap.Int64("objects_downloaded", stats.ObjectsDownloaded.Load()),
		zap.Int64("errors", stats.Errors.Load()))

	if stats.Errors.Load() > 0 {
		return fmt.Errorf("download completed with %d error(s)", stats.Errors.Load())
	}
	return nil
}

// jobsDirFor resolves the job registry root from layered configuration,
// falling back to a bare UserConfigDir path if config loading fails for
// any reason (e.g. a malformed project config file) — job tracking should
// never be the reason a download can't proceed.
func jobsDirFor(ctx context.Context) string {
	cfg, err := config.Load(ctx)
	if err != nil || cfg.JobsDir == "" {
		if dir, homeErr := os.UserConfigDir(); homeErr == nil {
			return dir + "/s3glob/jobs"
		}
		return os.TempDir() + "/s3glob/jobs"
	}
	return cfg.JobsDir
}
