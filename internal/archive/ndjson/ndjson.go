package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/uwinops/lancer/internal/archive"
)

// ensure ndjsonBackend implements archive.Backend
var _ archive.Backend = (*ndjsonBackend)(nil)

type ndjsonBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a new NDJSON-backed archive.Backend. Records append to the
// file, one JSON object per line.
func New(filePath string) (archive.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ndjson archive: %w", err)
	}

	return &ndjsonBackend{file: f}, nil
}

func (b *ndjsonBackend) Save(ctx context.Context, records []archive.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := bufio.NewWriter(b.file)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("append %s/%s: %w", r.Term, r.Code, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush ndjson archive: %w", err)
	}
	return nil
}

func (b *ndjsonBackend) Query(ctx context.Context, filter archive.Filter) ([]archive.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind ndjson archive: %w", err)
	}
	defer func() {
		// Restore pointer to end for appending
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	scanner := bufio.NewScanner(b.file)

	// A real database orders and pages in the engine. Here everything is
	// read, filtered in memory, then sorted and sliced.
	var matched []archive.Record

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r archive.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("decode archive line: %w", err)
		}

		if filter.BuildID != "" && r.BuildID != filter.BuildID {
			continue
		}
		if filter.Term != "" && r.Term != filter.Term {
			continue
		}
		if filter.Code != "" && r.Code != filter.Code {
			continue
		}
		if filter.Since != nil && r.BuiltAt.Before(*filter.Since) {
			continue
		}

		matched = append(matched, r)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ndjson archive: %w", err)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].BuiltAt.Equal(matched[j].BuiltAt) {
			return matched[i].BuiltAt.After(matched[j].BuiltAt)
		}
		if matched[i].Term != matched[j].Term {
			return matched[i].Term < matched[j].Term
		}
		return matched[i].Code < matched[j].Code
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []archive.Record{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

func (b *ndjsonBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
