package archive

import (
	"context"
	"testing"
	"time"

	"github.com/uwinops/lancer/internal/course"
)

type captureBackend struct {
	saved []Record
}

func (c *captureBackend) Save(ctx context.Context, records []Record) error {
	c.saved = append(c.saved, records...)
	return nil
}

func (c *captureBackend) Query(ctx context.Context, filter Filter) ([]Record, error) {
	return nil, nil
}

func (c *captureBackend) Close() error { return nil }

func TestStoreFlattensCorpus(t *testing.T) {
	backend := &captureBackend{}
	store := NewStore(backend)

	builtAt := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	corpus := course.Corpus{
		"20185": {
			{Term: "20185", Code: "60100", Title: "Key Concepts in Computer Science", Description: "Sets and functions."},
			{Term: "20185", Code: "60101", Title: "Intro to Proofs", Description: "Formal reasoning."},
		},
		"20191": {
			{Term: "20191", Code: "60100", Title: "Key Concepts in Computer Science", Description: "Winter offering."},
		},
	}

	err := store.Archive(context.Background(), "build-1", builtAt, corpus)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}

	if len(backend.saved) != 3 {
		t.Fatalf("saved %d records, want 3", len(backend.saved))
	}
	for _, r := range backend.saved {
		if r.BuildID != "build-1" {
			t.Errorf("record %s/%s has build id %q", r.Term, r.Code, r.BuildID)
		}
		if !r.BuiltAt.Equal(builtAt) {
			t.Errorf("record %s/%s has built at %v", r.Term, r.Code, r.BuiltAt)
		}
		if r.Title == "" || r.Description == "" {
			t.Errorf("record %s/%s lost fields: %+v", r.Term, r.Code, r)
		}
	}
}
