package cmd

import (
	"fmt"
	"os"
	"runtime"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quayside/s3glob/internal/observability"
	"github.com/quayside/s3glob/pkg/preflight"
)

var doctorProfile string

var doctorCmd = &cobra.Command{
	Use:   "doctor <bucket>",
	Short: "Check bucket reachability and list/head permissions",
	Args:  cobra.ExactArgs(1),
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProfile, "profile", "", "AWS profile to check credentials for")
}

// runDoctor is the trimmed, preflight-only variant of a full environment
// diagnostic: it checks the Go runtime, AWS credential resolution, and the
// bucket's list/head capabilities. It does not attempt to diagnose anything
// about a crawl index or search subsystem, since s3glob has neither.
func runDoctor(cmd *cobra.Command, args []string) error {
	bucket := args[0]
	log := observability.CLILogger
	log.Info("=== s3glob doctor ===")

	allChecks := true

	goVersion := runtime.Version()
	log.Info(fmt.Sprintf("[1/4] Go runtime: %s", goVersion), zap.String("go_version", goVersion))

	if doctorProfile != "" || os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != "" {
		var opts []func(*awsconfig.LoadOptions) error
		if doctorProfile != "" {
			opts = append(opts, awsconfig.WithSharedConfigProfile(doctorProfile))
		}
		opts = append(opts, awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled))

		cfg, err := awsconfig.LoadDefaultConfig(cmd.Context(), opts...)
		if err != nil {
			log.Error("[2/4] AWS credentials: cannot load config", zap.Error(err))
			allChecks = false
		} else if creds, err := cfg.Credentials.Retrieve(cmd.Context()); err != nil {
			log.Error("[2/4] AWS credentials: cannot retrieve credentials", zap.Error(err))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[2/4] AWS credentials: found (%s)", creds.Source),
				zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
				zap.String("source", creds.Source))
			if creds.CanExpire {
				remaining := time.Until(creds.Expires)
				if remaining < time.Hour {
					log.Warn(fmt.Sprintf("[2/4] credential expiry: expires in %s", formatDuration(remaining)),
						zap.Duration("remaining", remaining))
				}
			}
		}
	} else {
		log.Info("[2/4] AWS credentials: skipped (no profile or static keys given, relying on default chain)")
	}

	id := GetAppIdentity()
	store, err := openStore(cmd.Context(), bucket)
	if err != nil {
		log.Error("[3/4] bucket connection: failed", zap.String("bucket", bucket), zap.Error(err))
		return fmt.Errorf("connecting to bucket %s: %w", bucket, err)
	}
	defer func() { _ = store.Close() }()
	log.Info(fmt.Sprintf("[3/4] bucket connection: ok (region=%s endpoint=%s)", id.Region, id.Endpoint),
		zap.String("bucket", bucket))

	rec, err := preflight.Check(cmd.Context(), store, "")
	if err != nil {
		log.Error("[4/4] list/head capability check: failed", zap.Error(err))
		allChecks = false
	} else {
		for _, r := range rec.Results {
			if r.Allowed {
				log.Info(fmt.Sprintf("[4/4] capability %s: allowed", r.Capability), zap.String("capability", r.Capability))
			} else {
				log.Warn(fmt.Sprintf("[4/4] capability %s: denied (%s)", r.Capability, r.Detail),
					zap.String("capability", r.Capability), zap.String("error_code", r.ErrorCode))
				allChecks = false
			}
		}
	}

	if allChecks {
		log.Info("all checks passed")
		return nil
	}
	log.Warn("some checks failed, review output above")
	return fmt.Errorf("doctor checks failed for bucket %s", bucket)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
