// Package download implements the size-bucketed download orchestrator:
// four independent worker pools, one per object-size bucket, each writing
// through a temp file and renaming atomically into place on success.
//
// A download that fails or is cancelled after its temp file
// (`<dest>.s3glob-tmp-<n>`) was created leaves that temp file in place;
// the orchestrator never removes it.
package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/quayside/s3glob/pkg/enumerate"
	"github.com/quayside/s3glob/pkg/pathremap"
	"github.com/quayside/s3glob/pkg/provider"
)

// Store is the subset of store capabilities the orchestrator needs.
type Store interface {
	provider.ObjectGetter
}

// Config configures the orchestrator. Zero values are filled with the
// documented defaults by New.
type Config struct {
	BaseDir       string
	PrefixToStrip string
	Delimiter     byte
	Flatten       bool

	// MaxParallelism is the global fan-out cap; every pool clamps its own
	// concurrency to min(poolDefault, MaxParallelism).
	MaxParallelism int

	// RateLimiter, if set, throttles aggregate download bytes/sec across
	// every pool.
	RateLimiter *rate.Limiter

	Logger *zap.Logger
}

// poolBoundaries is the upper exclusive size boundary and default
// concurrency for each of the four size-bucketed pools, in ascending
// order. The last pool has no upper boundary.
var poolBoundaries = []struct {
	upperExclusive int64
	defaultConc    int
}{
	{200_000, 500},
	{1_000_000, 50},
	{10_000_000, 10},
	{-1, 5}, // huge: no upper bound
}

// NotificationKind distinguishes progress notifications.
type NotificationKind int

const (
	// BytesDownloaded reports incremental bytes written for some object.
	BytesDownloaded NotificationKind = iota
	// ObjectDownloaded reports a completed, renamed-into-place download.
	ObjectDownloaded
)

// Notification is one progress event from the orchestrator.
type Notification struct {
	Kind  NotificationKind
	Bytes int64  // valid when Kind == BytesDownloaded
	Path  string // valid when Kind == ObjectDownloaded
}

// Stats holds the shared atomic counters progress reporters read while
// downloads are in flight.
type Stats struct {
	ObjectsDownloaded atomic.Int64
	BytesDownloaded   atomic.Int64
	Errors            atomic.Int64
}

// Orchestrator dispatches matched objects into size-bucketed worker pools.
type Orchestrator struct {
	store Store
	cfg   Config

	objCounter atomic.Int64
}

// New builds an Orchestrator. cfg.MaxParallelism <= 0 is treated as 1.
func New(store Store, cfg Config) *Orchestrator {
	if cfg.MaxParallelism <= 0 {
		cfg.MaxParallelism = 1
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = '/'
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{store: store, cfg: cfg}
}

// Run dispatches every ObjectKind item from items into the appropriate size
// pool and returns a notification stream plus shared stats. PrefixKind
// items are ignored by the orchestrator; callers render them directly from
// the enumeration stream. The notification channel is closed once items is
// closed and every in-flight download has completed.
func (o *Orchestrator) Run(ctx context.Context, items <-chan enumerate.Item) (<-chan Notification, *Stats) {
	notify := make(chan Notification, o.cfg.MaxParallelism)
	stats := &Stats{}

	queues := make([]chan provider.ObjectSummary, len(poolBoundaries))
	var wg sync.WaitGroup
	for i, b := range poolBoundaries {
		conc := b.defaultConc
		if conc > o.cfg.MaxParallelism {
			conc = o.cfg.MaxParallelism
		}
		if conc <= 0 {
			conc = 1
		}
		queues[i] = make(chan provider.ObjectSummary, conc)
		for w := 0; w < conc; w++ {
			wg.Add(1)
			go func(q <-chan provider.ObjectSummary) {
				defer wg.Done()
				for obj := range q {
					o.downloadOne(ctx, obj, notify, stats)
				}
			}(queues[i])
		}
	}

	go func() {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		for item := range items {
			if item.Kind != enumerate.ObjectKind {
				continue
			}
			q := queues[bucketFor(item.Object.Size)]
			select {
			case q <- item.Object:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(notify)
	}()

	return notify, stats
}

func bucketFor(size int64) int {
	for i, b := range poolBoundaries {
		if b.upperExclusive < 0 || size < b.upperExclusive {
			return i
		}
	}
	return len(poolBoundaries) - 1
}

// downloadOne runs the per-object procedure in §4.5: resolve the local
// path, stream the body through a temp file, rename into place. Every
// failure is logged and skipped; none unwind the batch.
func (o *Orchestrator) downloadOne(ctx context.Context, obj provider.ObjectSummary, notify chan<- Notification, stats *Stats) {
	rel := pathremap.Apply(obj.Key, o.cfg.PrefixToStrip, o.cfg.Delimiter, o.cfg.Flatten)
	local := filepath.Join(o.cfg.BaseDir, rel)

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		o.cfg.Logger.Warn("create directory", zap.String("dir", filepath.Dir(local)), zap.Error(err))
		stats.Errors.Add(1)
		return
	}

	body, _, err := o.store.GetObject(ctx, obj.Key)
	if err != nil {
		o.cfg.Logger.Warn("get object", zap.String("key", obj.Key), zap.Error(err))
		stats.Errors.Add(1)
		return
	}
	defer body.Close()

	id := o.objCounter.Add(1)
	tmp := fmt.Sprintf("%s.s3glob-tmp-%d", local, id)

	file, err := os.Create(tmp)
	if err != nil {
		o.cfg.Logger.Warn("create temp file", zap.String("path", tmp), zap.Error(err))
		stats.Errors.Add(1)
		return
	}

	var reader io.Reader = body
	if o.cfg.RateLimiter != nil {
		reader = &rateLimitedReader{ctx: ctx, r: body, limiter: o.cfg.RateLimiter}
	}

	buf := make([]byte, 32*1024)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				o.cfg.Logger.Warn("write temp file", zap.String("path", tmp), zap.Error(err))
				file.Close()
				stats.Errors.Add(1)
				return
			}
			stats.BytesDownloaded.Add(int64(n))
			select {
			case notify <- Notification{Kind: BytesDownloaded, Bytes: int64(n)}:
			case <-ctx.Done():
				file.Close()
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			o.cfg.Logger.Warn("read object body", zap.String("key", obj.Key), zap.Error(readErr))
			file.Close()
			stats.Errors.Add(1)
			return
		}
	}

	if err := file.Sync(); err != nil {
		o.cfg.Logger.Warn("flush temp file", zap.String("path", tmp), zap.Error(err))
		file.Close()
		stats.Errors.Add(1)
		return
	}
	if err := file.Close(); err != nil {
		o.cfg.Logger.Warn("close temp file", zap.String("path", tmp), zap.Error(err))
		stats.Errors.Add(1)
		return
	}
	if err := os.Rename(tmp, local); err != nil {
		o.cfg.Logger.Warn("rename temp file", zap.String("from", tmp), zap.String("to", local), zap.Error(err))
		stats.Errors.Add(1)
		return
	}

	stats.ObjectsDownloaded.Add(1)
	select {
	case notify <- Notification{Kind: ObjectDownloaded, Path: local}:
	case <-ctx.Done():
	}
}

// rateLimitedReader throttles Read calls through a token-bucket limiter,
// one reservation per byte actually read.
type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := r.limiter.WaitN(r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
