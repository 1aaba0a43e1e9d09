package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/uwinops/lancer/internal/course"
	"github.com/uwinops/lancer/internal/fetch"
	"github.com/uwinops/lancer/internal/index"
)

type fakeIndex struct {
	previews   []course.Preview
	err        error
	started    bool
	rebuilding bool
}

func (f *fakeIndex) Query(term, text string) ([]course.Preview, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.previews, nil
}

func (f *fakeIndex) BeginRebuild() bool { return f.started }
func (f *fakeIndex) Rebuilding() bool   { return f.rebuilding }

type fakeScraper struct {
	detail *course.Detail
	err    error
}

func (f *fakeScraper) ScrapeDetail(ctx context.Context, term, code string) (*course.Detail, error) {
	return f.detail, f.err
}

func serve(t *testing.T, idx searchIndex, scraper detailScraper, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := newRouter(idx, scraper, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestQueryEndpoint(t *testing.T) {
	idx := &fakeIndex{previews: []course.Preview{
		{Term: "20185", Code: "62140", Title: "Discrete Math for Computing"},
		{Term: "20185", Code: "60100", Title: "Key Concepts in Computer Science"},
	}}

	rec := serve(t, idx, &fakeScraper{}, http.MethodGet, "/api/query?term=20185&q=computing")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		Results []course.Preview `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 2 {
		t.Fatalf("got %d results", len(body.Results))
	}
	if body.Results[0].Code != "60100" || body.Results[1].Code != "62140" {
		t.Errorf("results not ordered by code: %+v", body.Results)
	}
}

func TestQueryEndpointRequiresParams(t *testing.T) {
	rec := serve(t, &fakeIndex{}, &fakeScraper{}, http.MethodGet, "/api/query?term=20185")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d", rec.Code)
	}

	rec = serve(t, &fakeIndex{}, &fakeScraper{}, http.MethodGet, "/api/query?q=math")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing term: status = %d", rec.Code)
	}
}

func TestQueryEndpointRejectsMalformedQuery(t *testing.T) {
	idx := &fakeIndex{err: &index.QueryError{Query: `title:"x`, Err: errors.New("syntax error")}}

	rec := serve(t, idx, &fakeScraper{}, http.MethodGet, "/api/query?term=20185&q=x")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "syntax error") {
		t.Errorf("body %s does not surface the parse error", rec.Body)
	}
}

func TestQueryEndpointInternalError(t *testing.T) {
	idx := &fakeIndex{err: errors.New("index corrupted")}

	rec := serve(t, idx, &fakeScraper{}, http.MethodGet, "/api/query?term=20185&q=x")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestDetailEndpoint(t *testing.T) {
	scraper := &fakeScraper{detail: &course.Detail{Title: "Key Concepts in Computer Science", Meets: "TR 1:00PM - 2:20PM"}}

	rec := serve(t, &fakeIndex{}, scraper, http.MethodGet, "/api/courses/20185/03-60-100-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got course.Detail
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Title != scraper.detail.Title || got.Meets != scraper.detail.Meets {
		t.Errorf("got %+v", got)
	}
}

func TestDetailEndpointNotFound(t *testing.T) {
	rec := serve(t, &fakeIndex{}, &fakeScraper{}, http.MethodGet, "/api/courses/20185/99-99-999-99")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDetailEndpointPortalDown(t *testing.T) {
	scraper := &fakeScraper{err: &fetch.TransportError{URL: "http://portal", StatusCode: 503, Err: errors.New("service unavailable")}}

	rec := serve(t, &fakeIndex{}, scraper, http.MethodGet, "/api/courses/20185/03-60-100-01")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestRebuildEndpoint(t *testing.T) {
	rec := serve(t, &fakeIndex{started: true}, &fakeScraper{}, http.MethodPost, "/api/rebuild")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"started":true`) {
		t.Errorf("body = %s", rec.Body)
	}

	rec = serve(t, &fakeIndex{started: false}, &fakeScraper{}, http.MethodPost, "/api/rebuild")
	if !strings.Contains(rec.Body.String(), `"started":false`) {
		t.Errorf("in-flight rebuild body = %s", rec.Body)
	}
}

func TestHealthz(t *testing.T) {
	rec := serve(t, &fakeIndex{rebuilding: true}, &fakeScraper{}, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"rebuilding":true`) {
		t.Errorf("body = %s", rec.Body)
	}
}
