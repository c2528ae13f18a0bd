package janitor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/workbench/pkg/audit"
	"github.com/platinummonkey/workbench/pkg/observability"
	"github.com/platinummonkey/workbench/pkg/storage"
)

// References lists the blob keys still owned by a database row.
// assets.Service implements it.
type References interface {
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}

// Blobs is the part of storage.BlobStore the sweeper needs
type Blobs interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Config controls a sweep
type Config struct {
	// Prefixes to scan; defaults to documents/ and models/
	Prefixes []string
	// Concurrency bounds parallel deletes
	Concurrency int
	// DryRun reports orphans without deleting them
	DryRun bool
	// GracePeriod is how long a key must stay orphaned across sweeps before
	// it is deleted. Zero deletes on first sight.
	GracePeriod time.Duration
}

// Report summarizes one sweep
type Report struct {
	Scanned    int           `json:"scanned"`
	Referenced int           `json:"referenced"`
	Orphaned   int           `json:"orphaned"`
	Pending    int           `json:"pending"`
	Deleted    int           `json:"deleted"`
	Failed     int           `json:"failed"`
	DryRun     bool          `json:"dry_run"`
	Orphans    []string      `json:"orphans,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Sweeper removes stored blobs that no document or model references.
//
// Uploads write the blob before the row, so a fresh blob can briefly look
// orphaned. A key is therefore only deleted once it has been seen orphaned
// for at least GracePeriod.
type Sweeper struct {
	refs   References
	blobs  Blobs
	cfg    Config
	logger *observability.Logger
	audit  audit.Logger
	now    func() time.Time

	mu        sync.Mutex
	firstSeen map[string]time.Time
}

// NewSweeper creates a sweeper. logger and auditLogger may be nil.
func NewSweeper(refs References, blobs Blobs, cfg Config, logger *observability.Logger, auditLogger audit.Logger) *Sweeper {
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = []string{storage.PrefixDocuments, storage.PrefixModels}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = observability.NewLogger(observability.ErrorLevel, io.Discard)
	}
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &Sweeper{
		refs:      refs,
		blobs:     blobs,
		cfg:       cfg,
		logger:    logger,
		audit:     auditLogger,
		now:       time.Now,
		firstSeen: make(map[string]time.Time),
	}
}

// Sweep runs one pass. Delete failures are counted in the report and do not
// stop the pass; listing failures abort it.
func (s *Sweeper) Sweep(ctx context.Context) (*Report, error) {
	start := s.now()
	report := &Report{DryRun: s.cfg.DryRun}

	// list before reading references so a row committed in between still
	// protects its blob
	var stored []string
	for _, prefix := range s.cfg.Prefixes {
		keys, err := s.blobs.List(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs under %s: %w", prefix, err)
		}
		stored = append(stored, keys...)
	}
	refs, err := s.refs.ReferencedKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load referenced keys: %w", err)
	}
	report.Scanned = len(stored)

	eligible := s.classify(stored, refs, start, report)
	sort.Strings(eligible)
	report.Orphans = eligible

	if !s.cfg.DryRun && len(eligible) > 0 {
		s.deleteAll(ctx, eligible, report)
	}
	report.Duration = s.now().Sub(start)

	s.logger.WithFields(map[string]interface{}{
		"scanned":  report.Scanned,
		"orphaned": report.Orphaned,
		"pending":  report.Pending,
		"deleted":  report.Deleted,
		"failed":   report.Failed,
		"dry_run":  report.DryRun,
	}).Info("blob sweep finished")

	status := audit.EventStatusSuccess
	if report.Failed > 0 {
		status = audit.EventStatusFailure
	}
	audit.Record(ctx, s.audit, audit.NewEvent(nil, audit.EventTypeDataBlobSweep, status).
		WithResource(audit.ResourceTypeBlob, "").
		WithMetadata("scanned", report.Scanned).
		WithMetadata("orphaned", report.Orphaned).
		WithMetadata("deleted", report.Deleted).
		WithMetadata("failed", report.Failed).
		WithMetadata("dry_run", report.DryRun))
	return report, nil
}

// classify updates the first-seen ledger and returns the keys old enough to
// delete
func (s *Sweeper) classify(stored []string, refs map[string]struct{}, now time.Time, report *Report) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphaned := make(map[string]struct{})
	var eligible []string
	for _, key := range stored {
		if _, ok := refs[key]; ok {
			report.Referenced++
			continue
		}
		orphaned[key] = struct{}{}
		report.Orphaned++

		seen, ok := s.firstSeen[key]
		if !ok {
			seen = now
			s.firstSeen[key] = now
		}
		if now.Sub(seen) >= s.cfg.GracePeriod {
			eligible = append(eligible, key)
		} else {
			report.Pending++
		}
	}
	// forget keys that were adopted or removed elsewhere
	for key := range s.firstSeen {
		if _, ok := orphaned[key]; !ok {
			delete(s.firstSeen, key)
		}
	}
	return eligible
}

func (s *Sweeper) deleteAll(ctx context.Context, keys []string, report *Report) {
	var deleted, failed int64
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				atomic.AddInt64(&failed, 1)
				return nil
			}
			if err := s.blobs.Delete(ctx, key); err != nil {
				atomic.AddInt64(&failed, 1)
				s.logger.WithError(err).WithField("key", key).Warn("failed to delete orphaned blob")
				return nil
			}
			atomic.AddInt64(&deleted, 1)
			s.mu.Lock()
			delete(s.firstSeen, key)
			s.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Deleted = int(deleted)
	report.Failed = int(failed)
}
