// Package scrape sequences portal calls into the two operations the rest of
// the system needs: assembling the full corpus an index build consumes, and
// the on-demand full-detail scrape behind a selected preview.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/uwinops/lancer/internal/course"
	"github.com/uwinops/lancer/internal/extract"
	"github.com/uwinops/lancer/internal/metrics"
	"github.com/uwinops/lancer/internal/portal"
)

// ErrScheduleUnresolved reports a data-consistency fault on the portal side:
// a course's detail page exists, but its section is missing from the portal's
// own other-sections listing, so its meeting schedule cannot be resolved.
var ErrScheduleUnresolved = errors.New("scrape: section missing from other-sections listing")

// Orchestrator drives the portal client and extractor.
type Orchestrator struct {
	client  *portal.Client
	logger  *slog.Logger
	workers int
}

// New creates an Orchestrator. workers bounds the parallel basic scrapes
// during BuildCorpus; values <= 0 default to the available hardware
// parallelism.
func New(client *portal.Client, workers int, logger *slog.Logger) *Orchestrator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{client: client, workers: workers, logger: logger}
}

func timed(shape string, fn func() (*goquery.Document, error)) (*goquery.Document, error) {
	start := time.Now()
	doc, err := fn()
	metrics.RecordPortalRequest(shape, err, time.Since(start))
	return doc, err
}

// BuildCorpus scrapes every course summary for every term the portal offers.
//
// Per term, the basic scrapes run concurrently across the worker pool. All
// dispatched scrapes run to completion; the first failure to finish (by
// completion order, not dispatch order) fails the whole build and every other
// result is discarded. There is no partial corpus: a single failed course
// aborts the term, a single failed term aborts the build.
func (o *Orchestrator) BuildCorpus(ctx context.Context) (course.Corpus, error) {
	termsDoc, err := timed("terms", func() (*goquery.Document, error) {
		return o.client.Terms(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch terms: %w", err)
	}

	terms, err := extract.Terms(termsDoc)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}

	o.logger.Info("building corpus", "terms", len(terms), "workers", o.workers)

	corpus := course.Corpus{}
	for _, term := range terms {
		summaries, err := o.scrapeTerm(ctx, term)
		if err != nil {
			return nil, err
		}
		corpus[term.Code] = summaries
		o.logger.Debug("term scraped", "term", term.Code, "name", term.Name, "courses", len(summaries))
	}

	o.logger.Info("corpus complete", "terms", len(corpus), "courses", corpus.Size())
	return corpus, nil
}

func (o *Orchestrator) scrapeTerm(ctx context.Context, term course.Term) ([]course.Summary, error) {
	listDoc, err := timed("courses", func() (*goquery.Document, error) {
		return o.client.Courses(ctx, term.Code)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch course list for term %s: %w", term.Code, err)
	}

	codes, err := extract.CourseCodes(listDoc)
	if err != nil {
		return nil, fmt.Errorf("scrape: term %s: %w", term.Code, err)
	}

	var (
		mu        sync.Mutex
		summaries = make([]course.Summary, 0, len(codes))
	)

	// A bare errgroup deliberately: Wait returns the first error to finish
	// and in-flight siblings keep running to completion, uncancelled.
	var g errgroup.Group
	g.SetLimit(o.workers)

	for _, code := range codes {
		g.Go(func() error {
			s, err := o.scrapeBasic(ctx, term.Code, code)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries = append(summaries, s)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// scrapeBasic fetches the title and description for one course section.
func (o *Orchestrator) scrapeBasic(ctx context.Context, term, code string) (course.Summary, error) {
	activity, section, ok := course.SplitCode(code)
	if !ok {
		return course.Summary{}, fmt.Errorf("scrape: malformed course code %q in term %s listing", code, term)
	}

	doc, err := timed("summary", func() (*goquery.Document, error) {
		return o.client.Summary(ctx, term, activity, section)
	})
	if err != nil {
		return course.Summary{}, fmt.Errorf("scrape: fetch summary %s/%s: %w", term, code, err)
	}

	// The listing told us this course exists; the portal disagreeing on the
	// detail view is a build-stopping inconsistency, not a NotFound.
	if extract.IsPortalError(doc) {
		return course.Summary{}, fmt.Errorf("scrape: course %s/%s listed but not served", term, code)
	}

	title, description, err := extract.Summary(doc)
	if err != nil {
		return course.Summary{}, fmt.Errorf("scrape: summary %s/%s: %w", term, code, err)
	}

	return course.Summary{
		Term:        term,
		Code:        code,
		Title:       title,
		Description: description,
	}, nil
}

// ScrapeDetail assembles the full record for one course section from three
// sequential portal calls: the main detail page, the instructor listing, and
// the other-sections listing. It returns (nil, nil) when the portal reports
// the section does not exist.
func (o *Orchestrator) ScrapeDetail(ctx context.Context, term, code string) (*course.Detail, error) {
	activity, section, ok := course.SplitCode(code)
	if !ok {
		return nil, nil
	}

	mainDoc, err := timed("details", func() (*goquery.Document, error) {
		return o.client.Details(ctx, term, activity, section)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch details %s/%s: %w", term, code, err)
	}

	if extract.IsPortalError(mainDoc) {
		return nil, nil
	}

	detail, err := extract.Detail(mainDoc)
	if err != nil {
		return nil, fmt.Errorf("scrape: details %s/%s: %w", term, code, err)
	}

	insDoc, err := timed("instructors", func() (*goquery.Document, error) {
		return o.client.Instructors(ctx, term, activity, section)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch instructors %s/%s: %w", term, code, err)
	}

	detail.Instructors, err = extract.Instructors(insDoc)
	if err != nil {
		return nil, fmt.Errorf("scrape: instructors %s/%s: %w", term, code, err)
	}

	secDoc, err := timed("sections", func() (*goquery.Document, error) {
		return o.client.OtherSections(ctx, term, activity)
	})
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch sections %s/%s: %w", term, code, err)
	}

	detail.Sections, err = extract.Sections(secDoc)
	if err != nil {
		return nil, fmt.Errorf("scrape: sections %s/%s: %w", term, code, err)
	}

	// The displayed schedule belongs to the section being viewed; resolve it
	// against the listing the portal just served.
	for _, s := range detail.Sections {
		if s.Code == code {
			detail.Meets = s.Meets
			return detail, nil
		}
	}
	return nil, fmt.Errorf("scrape: %s/%s: %w", term, code, ErrScheduleUnresolved)
}
