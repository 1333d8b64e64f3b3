package provider

import (
	"context"
	"io"
)

// Optional provider capability interfaces.
//
// These interfaces are used for feature detection (type assertions). The core
// Provider interface remains intentionally small; stores that cannot stream
// objects (e.g. a list-only test double) simply don't implement ObjectGetter.

// ObjectGetter can download objects as a stream.
//
// Used by the download orchestrator to stream object bodies to disk.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}
