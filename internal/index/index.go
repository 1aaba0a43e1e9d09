// Package index owns the persistent, term-scoped full-text index over course
// summaries. A Snapshot is built once from a corpus and never mutated;
// updates happen by building a new snapshot and swapping it in upstream.
package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/length"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/ngram"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/uwinops/lancer/internal/course"
)

// MaxResults caps every query's result list.
const MaxResults = 10

const (
	// gramSize is the fixed character n-gram length for code/title tokens,
	// giving substring-style fuzzy matching on both.
	gramSize = 3
	// maxTokenLength discards pathological tokens before n-gramming.
	maxTokenLength = 255

	batchSize = 500
)

// QueryError reports free-text input the engine's query grammar rejects.
// It is the caller's signal to blame the input, not the system.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Snapshot is one immutable, fully committed index. Concurrent queries need
// no locking.
type Snapshot struct {
	idx bleve.Index
}

func buildMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	if err := im.AddCustomTokenFilter("course_gram", map[string]interface{}{
		"type": ngram.Name,
		"min":  float64(gramSize),
		"max":  float64(gramSize),
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomTokenFilter("course_length", map[string]interface{}{
		"type": length.Name,
		"min":  1.0,
		"max":  float64(maxTokenLength),
	}); err != nil {
		return nil, err
	}
	if err := im.AddCustomAnalyzer("course_gram", map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []interface{}{"course_length", lowercase.Name, "course_gram"},
	}); err != nil {
		return nil, err
	}

	termField := bleve.NewTextFieldMapping()
	termField.Analyzer = keyword.Name
	termField.Store = true
	termField.IncludeInAll = false

	codeField := bleve.NewTextFieldMapping()
	codeField.Analyzer = "course_gram"
	codeField.Store = true

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = "course_gram"
	titleField.Store = true

	descField := bleve.NewTextFieldMapping()
	descField.Analyzer = standard.Name
	descField.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("term", termField)
	doc.AddFieldMappingsAt("code", codeField)
	doc.AddFieldMappingsAt("title", titleField)
	doc.AddFieldMappingsAt("description", descField)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

// Build creates a new index at path and commits every corpus tuple to it.
// Each tuple becomes one write-once document keyed by term/code.
func Build(path string, corpus course.Corpus) (*Snapshot, error) {
	im, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("index: build mapping: %w", err)
	}

	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("index: create at %s: %w", path, err)
	}

	if err := commit(idx, corpus); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return &Snapshot{idx: idx}, nil
}

func commit(idx bleve.Index, corpus course.Corpus) error {
	batch := idx.NewBatch()
	for term, summaries := range corpus {
		for _, s := range summaries {
			doc := map[string]interface{}{
				"term":        term,
				"code":        s.Code,
				"title":       s.Title,
				"description": s.Description,
			}
			if err := batch.Index(term+"/"+s.Code, doc); err != nil {
				return fmt.Errorf("index: batch %s/%s: %w", term, s.Code, err)
			}
			if batch.Size() >= batchSize {
				if err := idx.Batch(batch); err != nil {
					return fmt.Errorf("index: commit batch: %w", err)
				}
				batch.Reset()
			}
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("index: commit batch: %w", err)
		}
	}
	return nil
}

// Open loads an existing index from path.
func Open(path string) (*Snapshot, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	return &Snapshot{idx: idx}, nil
}

// buildInMemory backs the index tests; production snapshots always live on
// disk.
func buildInMemory(corpus course.Corpus) (*Snapshot, error) {
	im, err := buildMapping()
	if err != nil {
		return nil, fmt.Errorf("index: build mapping: %w", err)
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("index: create in-memory: %w", err)
	}
	if err := commit(idx, corpus); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return &Snapshot{idx: idx}, nil
}

// Query returns up to MaxResults previews matching the free text, restricted
// to exact equality on term and ranked by the engine's relevance score. The
// text must satisfy the engine's query-string grammar; input it rejects comes
// back as a *QueryError. Result order is relevance: callers presenting
// multiple results re-sort by code themselves.
func (s *Snapshot) Query(term, text string) ([]course.Preview, error) {
	// Run the text through the engine's query grammar first, so malformed
	// input surfaces as the user's fault rather than a search failure.
	if _, err := query.NewQueryStringQuery(text).Parse(); err != nil {
		return nil, &QueryError{Query: text, Err: err}
	}

	matchField := func(field string) *query.MatchQuery {
		q := query.NewMatchQuery(text)
		q.SetField(field)
		// All analyzed tokens must be present: a query that is a full code
		// matches exactly that code, not every code sharing a gram with it.
		q.SetOperator(query.MatchQueryOperatorAnd)
		return q
	}

	free := query.NewDisjunctionQuery([]query.Query{
		matchField("code"),
		matchField("title"),
		matchField("description"),
	})

	termQ := query.NewTermQuery(term)
	termQ.SetField("term")

	req := bleve.NewSearchRequestOptions(
		query.NewConjunctionQuery([]query.Query{free, termQ}),
		MaxResults, 0, false,
	)
	req.Fields = []string{"term", "code", "title"}

	res, err := s.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	previews := make([]course.Preview, 0, len(res.Hits))
	for _, hit := range res.Hits {
		previews = append(previews, course.Preview{
			Term:  stringField(hit.Fields, "term"),
			Code:  stringField(hit.Fields, "code"),
			Title: stringField(hit.Fields, "title"),
		})
	}
	return previews, nil
}

func stringField(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

// Count returns the number of documents committed to the snapshot.
func (s *Snapshot) Count() (uint64, error) {
	n, err := s.idx.DocCount()
	if err != nil {
		return 0, fmt.Errorf("index: doc count: %w", err)
	}
	return n, nil
}

// Close releases the snapshot's storage handles.
func (s *Snapshot) Close() error {
	if err := s.idx.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}
