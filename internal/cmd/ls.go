package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quayside/s3glob/internal/observability"
	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/glob"
	"github.com/quayside/s3glob/pkg/output"
	"github.com/quayside/s3glob/pkg/planner"
)

var (
	lsFormat string
	lsStream bool
)

var lsCmd = &cobra.Command{
	Use:   "ls <pattern>",
	Short: "List objects matching a glob pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringVar(&lsFormat, "format", "", "custom output line format (placeholders: {key} {uri} {size_bytes} {size_human} {last_modified})")
	lsCmd.Flags().BoolVar(&lsStream, "stream", false, "emit matches as found, without the final sort-by-key pass")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	uri, err := ParseURI(args[0])
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}

	writer, err := newWriter(os.Stdout, uri.Bucket, lsFormat)
	if err != nil {
		return fmt.Errorf("%w: %s", errInvalidUsage, err)
	}
	defer func() { _ = writer.Close() }()

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

	var matched int64
	if lsStream {
		matched, err = emitStreaming(ctx, writer, items, uri.Bucket)
	} else {
		matched, err = emitSorted(ctx, writer, items, uri.Bucket)
	}
	if err != nil {
		return err
	}
	if enumErr := <-errCh; enumErr != nil {
		return fmt.Errorf("listing %s: %w", pattern, enumErr)
	}

	observability.CLILogger.Debug("ls completed",
		zap.String("pattern", pattern),
		zap.Int64("matched", matched))
	return nil
}

func emitStreaming(ctx context.Context, w output.Writer, items <-chan enumerate.Item, bucket string) (int64, error) {
	var matched int64
	for item := range items {
		if err := emitItem(ctx, w, item, bucket); err != nil {
			return matched, err
		}
		if item.Kind == enumerate.ObjectKind {
			matched++
		}
	}
	return matched, nil
}

func emitSorted(ctx context.Context, w output.Writer, items <-chan enumerate.Item, bucket string) (int64, error) {
	var buffered []enumerate.Item
	for item := range items {
		buffered = append(buffered, item)
	}
	sort.Slice(buffered, func(i, j int) bool {
		return itemKey(buffered[i]) < itemKey(buffered[j])
	})
	var matched int64
	for _, item := range buffered {
		if err := emitItem(ctx, w, item, bucket); err != nil {
			return matched, err
		}
		if item.Kind == enumerate.ObjectKind {
			matched++
		}
	}
	return matched, nil
}

func itemKey(item enumerate.Item) string {
	if item.Kind == enumerate.PrefixKind {
		return item.Prefix
	}
	return item.Object.Key
}

func emitItem(ctx context.Context, w output.Writer, item enumerate.Item, bucket string) error {
	if item.Kind == enumerate.PrefixKind {
		return w.WritePrefix(ctx, &output.PrefixRecord{Prefix: item.Prefix})
	}
	obj := item.Object
	return w.WriteObject(ctx, &output.ObjectRecord{
		Key:          obj.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
	})
}

// newWriter picks the output writer for the given format: a plain-text
// writer by default (spec.md §6's default/user-format behavior), unless
// format is "json", which selects JSONL envelopes for machine consumption.
func newWriter(f *os.File, bucket, format string) (output.Writer, error) {
	if format == "json" {
		return output.NewJSONLWriter(f), nil
	}
	return output.NewTextWriter(f, bucket, format)
}
