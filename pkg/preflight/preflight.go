// Package preflight runs read-only capability checks against a bucket
// before a long-running ls/dl run: can we list, can we head. It backs the
// `doctor` subcommand.
package preflight

import (
	"context"
	"fmt"

	"github.com/quayside/s3glob/pkg/output"
	"github.com/quayside/s3glob/pkg/provider"
)

// Capability names are stable strings used in JSONL output.
const (
	CapList = "list"
	CapHead = "head"
)

// Check validates that listing and HEAD are permitted against the bucket.
// prefix scopes the list probe to the narrowest prefix the caller already
// knows about (e.g. the planner's derived prefix), falling back to a full
// listing when empty. A failed list probe is recorded and returned as an
// error, and HEAD is then not probed, since HEAD's own target depends on
// list having found at least one key. A failed or impossible HEAD probe
// is recorded and Check still returns a nil error.
func Check(ctx context.Context, prov provider.Provider, prefix string) (*output.PreflightRecord, error) {
	rec := &output.PreflightRecord{Results: []output.PreflightCheckResult{}}

	result, err := prov.List(ctx, provider.ListOptions{Prefix: prefix, MaxKeys: 1})
	if err != nil {
		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: CapList,
			Allowed:    false,
			ErrorCode:  normalizeErrorCode(err),
			Detail:     err.Error(),
		})
		return rec, fmt.Errorf("preflight list: %w", err)
	}
	rec.Results = append(rec.Results, output.PreflightCheckResult{Capability: CapList, Allowed: true})

	if len(result.Objects) == 0 {
		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: CapHead,
			Allowed:    false,
			Detail:     "no object available under prefix to probe HEAD with",
		})
		return rec, nil
	}

	if _, err := prov.Head(ctx, result.Objects[0].Key); err != nil {
		rec.Results = append(rec.Results, output.PreflightCheckResult{
			Capability: CapHead,
			Allowed:    false,
			ErrorCode:  normalizeErrorCode(err),
			Detail:     err.Error(),
		})
		return rec, nil
	}
	rec.Results = append(rec.Results, output.PreflightCheckResult{Capability: CapHead, Allowed: true})

	return rec, nil
}

func normalizeErrorCode(err error) string {
	switch {
	case provider.IsAccessDenied(err):
		return output.ErrCodeAccessDenied
	case provider.IsBucketNotFound(err), provider.IsNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsThrottled(err):
		return output.ErrCodeThrottled
	case provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsProviderUnavailable(err):
		return output.ErrCodeInternal
	default:
		return output.ErrCodeInternal
	}
}
