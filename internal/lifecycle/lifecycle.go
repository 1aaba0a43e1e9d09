// Package lifecycle owns the on-disk index: startup bootstrap, query
// routing, and operator-triggered rebuilds. Exactly one snapshot is active
// at a time and readers never block on a rebuild.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/uwinops/lancer/internal/course"
	"github.com/uwinops/lancer/internal/index"
	"github.com/uwinops/lancer/internal/metrics"
)

// CorpusSource produces a fresh course corpus from the portal.
type CorpusSource interface {
	BuildCorpus(ctx context.Context) (course.Corpus, error)
}

// Archiver persists a corpus snapshot for later inspection. Archiving is
// best effort and never fails a build.
type Archiver interface {
	Archive(ctx context.Context, buildID string, builtAt time.Time, corpus course.Corpus) error
}

// Config wires a Manager.
type Config struct {
	// Path is the index directory. A missing directory triggers a full
	// scrape on Open.
	Path string

	Source CorpusSource

	// Archiver may be nil to disable corpus archiving.
	Archiver Archiver

	Logger *slog.Logger
}

// Manager mediates between query traffic and index builds.
type Manager struct {
	path     string
	source   CorpusSource
	archiver Archiver
	logger   *slog.Logger

	active     atomic.Pointer[index.Snapshot]
	rebuilding atomic.Bool
	errs       chan error
}

func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:     cfg.Path,
		source:   cfg.Source,
		archiver: cfg.Archiver,
		logger:   logger,
		errs:     make(chan error, 8),
	}
}

// Errors exposes rebuild failures to the operator. Sends never block: when
// nobody is draining the channel, failures are still on the log.
func (m *Manager) Errors() <-chan error {
	return m.errs
}

func (m *Manager) reportError(err error) {
	m.logger.Error("rebuild failed", "error", err)
	select {
	case m.errs <- err:
	default:
	}
}

// Open activates an index. An existing directory at the configured path is
// loaded as-is; otherwise a full scrape and build runs synchronously. Any
// failure here is fatal to startup, there is nothing to serve without an
// index.
func (m *Manager) Open(ctx context.Context) error {
	if _, err := os.Stat(m.path); err == nil {
		snap, err := index.Open(m.path)
		if err != nil {
			return fmt.Errorf("lifecycle: %w", err)
		}
		m.active.Store(snap)
		n, err := snap.Count()
		if err != nil {
			return fmt.Errorf("lifecycle: %w", err)
		}
		metrics.IndexedCourses.Set(float64(n))
		m.logger.Info("loaded existing index", "path", m.path, "courses", n)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lifecycle: stat %s: %w", m.path, err)
	}

	m.logger.Info("no index on disk, scraping portal", "path", m.path)
	if err := m.rebuild(ctx); err != nil {
		return fmt.Errorf("lifecycle: initial build: %w", err)
	}
	return nil
}

// BeginRebuild starts a background scrape-and-rebuild and reports whether it
// was started. A false return means a rebuild is already in flight. The
// active snapshot is retired as soon as the rebuild starts: until the new
// build succeeds, queries answer empty, and a failed build leaves the system
// without an index until a later rebuild succeeds. Failures never crash the
// process; they go to the log and the Errors channel.
func (m *Manager) BeginRebuild() bool {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer m.rebuilding.Store(false)
		if err := m.rebuild(context.Background()); err != nil {
			m.reportError(err)
		}
	}()
	return true
}

// Rebuilding reports whether a background rebuild is in flight.
func (m *Manager) Rebuilding() bool {
	return m.rebuilding.Load()
}

func (m *Manager) rebuild(ctx context.Context) error {
	start := time.Now()
	buildID := uuid.NewString()
	m.logger.Info("building index", "build_id", buildID)

	// Delete-then-rebuild: the previous snapshot is retired and its storage
	// removed before the new corpus exists. Queries answer empty until the
	// build succeeds, and a failed build leaves no index at all until a
	// later rebuild. Building into a fresh directory and swapping after
	// would close that window; the retire-first behavior is kept on
	// purpose.
	if old := m.active.Swap(nil); old != nil {
		metrics.IndexedCourses.Set(0)
		if err := old.Close(); err != nil {
			m.logger.Warn("closing retired snapshot", "error", err)
		}
	}
	if err := os.RemoveAll(m.path); err != nil {
		metrics.RecordBuild(err, time.Since(start))
		return fmt.Errorf("remove old index: %w", err)
	}

	corpus, err := m.source.BuildCorpus(ctx)
	if err != nil {
		metrics.RecordBuild(err, time.Since(start))
		return fmt.Errorf("scrape corpus: %w", err)
	}

	snap, err := index.Build(m.path, corpus)
	if err != nil {
		metrics.RecordBuild(err, time.Since(start))
		return fmt.Errorf("build index: %w", err)
	}
	m.active.Store(snap)

	size := corpus.Size()
	metrics.RecordBuild(nil, time.Since(start))
	metrics.IndexedCourses.Set(float64(size))
	m.logger.Info("index built",
		"build_id", buildID,
		"terms", len(corpus),
		"courses", size,
		"took", time.Since(start))

	if m.archiver != nil {
		if err := m.archiver.Archive(ctx, buildID, start, corpus); err != nil {
			m.logger.Warn("corpus archive failed", "build_id", buildID, "error", err)
		}
	}
	return nil
}

// Query searches the active snapshot. An empty slot, whether before the
// first build or while a rebuild is in flight, answers with an empty list
// rather than an error.
func (m *Manager) Query(term, text string) ([]course.Preview, error) {
	snap := m.active.Load()
	if snap == nil {
		metrics.RecordQuery("unavailable")
		return []course.Preview{}, nil
	}

	previews, err := snap.Query(term, text)
	switch {
	case err == nil:
		metrics.RecordQuery("ok")
	default:
		var qe *index.QueryError
		if errors.As(err, &qe) {
			metrics.RecordQuery("invalid")
		} else {
			metrics.RecordQuery("error")
		}
		return nil, err
	}
	return previews, nil
}

// Close releases the active snapshot, if any.
func (m *Manager) Close() error {
	if snap := m.active.Swap(nil); snap != nil {
		return snap.Close()
	}
	return nil
}
