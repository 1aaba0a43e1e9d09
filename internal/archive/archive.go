// Package archive persists every scraped corpus as flat per-course records,
// keyed by the build that produced them. The archive sits beside the search
// index and is never read on the query path; it exists so operators can diff
// builds and audit what the portal served on a given day.
package archive

import (
	"context"
	"time"

	"github.com/uwinops/lancer/internal/course"
)

// Record is one course summary as archived from a single build.
type Record struct {
	BuildID     string
	BuiltAt     time.Time
	Term        string
	Code        string
	Title       string
	Description string
}

// Filter selects archived records.
type Filter struct {
	BuildID string
	Term    string
	Code    string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend defines the interface for storing and querying archived corpora.
type Backend interface {
	Save(ctx context.Context, records []Record) error
	Query(ctx context.Context, filter Filter) ([]Record, error)
	Close() error
}

// Store adapts a Backend to the corpus-archiving hook: it flattens a corpus
// into records stamped with the build's identity.
type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Archive(ctx context.Context, buildID string, builtAt time.Time, corpus course.Corpus) error {
	records := make([]Record, 0, corpus.Size())
	for term, summaries := range corpus {
		for _, sum := range summaries {
			records = append(records, Record{
				BuildID:     buildID,
				BuiltAt:     builtAt,
				Term:        term,
				Code:        sum.Code,
				Title:       sum.Title,
				Description: sum.Description,
			})
		}
	}
	return s.backend.Save(ctx, records)
}

func (s *Store) Close() error {
	return s.backend.Close()
}
