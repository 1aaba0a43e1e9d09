package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/uwinops/lancer/internal/fetch"
	"github.com/uwinops/lancer/internal/fingerprint"
	"github.com/uwinops/lancer/internal/portal"
)

const portletPrefix = "_uwinregistrationcoursesearch_WAR_uwinregistrationtoolsportlet_"

// fakePortal serves the portal's request shapes from in-memory page maps,
// dispatching on the struts action parameter like the real portlet does.
type fakePortal struct {
	terms       string            // term list page
	courseLists map[string]string // term -> course list page
	detailPages map[string]string // activity/section -> detail page
	instructors string
	sections    string
	failSummary string // activity/section that gets a 500
}

func (p *fakePortal) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get(portletPrefix + "struts.portlet.action")
		switch action {
		case "/courseSearch/viewTermList":
			fmt.Fprint(w, p.terms)
		case "/courseSearch/ExecuteCourseSearch":
			term := r.PostFormValue("acadtermCode")
			page, ok := p.courseLists[term]
			if !ok {
				t.Errorf("course list requested for unknown term %q", term)
			}
			fmt.Fprint(w, page)
		case "/courseSearch/viewCourseDetails":
			key := r.URL.Query().Get(portletPrefix+"courseDetailsForm.activityCode") +
				"/" + r.URL.Query().Get(portletPrefix+"courseDetailsForm.sectionNo")
			if key == p.failSummary {
				http.Error(w, "portal exploded", http.StatusInternalServerError)
				return
			}
			page, ok := p.detailPages[key]
			if !ok {
				fmt.Fprint(w, `<html><body><div class="portlet-msg-error">Not available.</div></body></html>`)
				return
			}
			fmt.Fprint(w, page)
		case "/courseSearch/viewCourseDetailsInstructors":
			fmt.Fprint(w, p.instructors)
		case "/courseSearch/executeFindOtherSections":
			fmt.Fprint(w, p.sections)
		default:
			t.Errorf("unexpected portal action %q", action)
			http.NotFound(w, r)
		}
	}
}

func termsPage(terms map[string]string) string {
	var b strings.Builder
	b.WriteString(`<html><body><select id="` + portletPrefix + `acadtermCode">`)
	for code, name := range terms {
		fmt.Fprintf(&b, `<option value="%s">%s</option>`, code, name)
	}
	b.WriteString(`</select></body></html>`)
	return b.String()
}

func courseListPage(codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="` + portletPrefix + `CourseResults"><table><tbody>`)
	for _, c := range codes {
		fmt.Fprintf(&b, `<tr><td><a href="#">%s</a></td></tr>`, c)
	}
	b.WriteString(`</tbody></table></div></body></html>`)
	return b.String()
}

func detailPage(title, description string) string {
	return `<html><body><h1>` + title + `</h1>
<div id="` + portletPrefix + `tabs-details">
  <div>MWF 10:30AM - 11:20AM</div>
  <span id="dateSessionStartsFormatted">Sep 6, 2018</span>
  <span id="dateSessionEndsFormatted">Dec 3, 2018</span>
  <span id="courseSectionInfo_campus">Main Campus</span>
  <span id="courseSectionInfo_sectionAvailability">12 of 80</span>
  <span id="courseSectionInfo_courseValue">3.00</span>
  <span id="dateDropsCloseFormatted">Nov 14, 2018</span>
  <p>` + description + `</p>
</div></body></html>`
}

func instructorsPage(name, email string) string {
	return `<html><body><ul><li><b>` + name + `</b><div>
<span class="wwctrl">Professor</span><span class="wwctrl">Computer Science</span>
<span class="wwctrl">519-253-3000</span><span class="wwctrl">` + email + `</span>
</div></li></ul></body></html>`
}

func sectionsPage(codes ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div id="` + portletPrefix + `OtherSections"><table><tbody>`)
	for _, c := range codes {
		fmt.Fprintf(&b, `<tr><td><a class="uwinPopupLink" href="/sec/%s">%s</a></td>`+
			`<td>Title</td><td>TR 1:00PM - 2:20PM</td><td>Full Session</td><td>Open</td></tr>`, c, c)
	}
	b.WriteString(`</tbody></table></div></body></html>`)
	return b.String()
}

func newOrchestrator(t *testing.T, p *fakePortal) *Orchestrator {
	t.Helper()

	srv := httptest.NewServer(p.handler(t))
	t.Cleanup(srv.Close)

	f, err := fetch.New(fetch.Config{Fingerprint: fingerprint.ProfileGo})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	t.Cleanup(f.Close)

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(portal.NewClient(f, srv.URL), 4, logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func TestBuildCorpus(t *testing.T) {
	p := &fakePortal{
		terms: termsPage(map[string]string{"20185": "Fall 2018"}),
		courseLists: map[string]string{
			"20185": courseListPage("03-60-100-01", "03-60-140-01"),
		},
		detailPages: map[string]string{
			"0360100/01": detailPage("Key Concepts in Computer Science", "An introduction."),
			"0360140/01": detailPage("Problem Solving", "Structured problem solving."),
		},
	}

	corpus, err := newOrchestrator(t, p).BuildCorpus(context.Background())
	if err != nil {
		t.Fatalf("BuildCorpus: %v", err)
	}

	summaries := corpus["20185"]
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	byCode := map[string]string{}
	for _, s := range summaries {
		if s.Term != "20185" {
			t.Errorf("summary term = %q, want 20185", s.Term)
		}
		byCode[s.Code] = s.Title
	}
	if byCode["03-60-100-01"] != "Key Concepts in Computer Science" {
		t.Errorf("unexpected titles: %v", byCode)
	}
	if byCode["03-60-140-01"] != "Problem Solving" {
		t.Errorf("unexpected titles: %v", byCode)
	}
}

func TestBuildCorpusFailsOnSingleCourse(t *testing.T) {
	p := &fakePortal{
		terms: termsPage(map[string]string{"20185": "Fall 2018"}),
		courseLists: map[string]string{
			"20185": courseListPage("03-60-100-01", "03-60-140-01", "03-60-212-01"),
		},
		detailPages: map[string]string{
			"0360100/01": detailPage("Key Concepts in Computer Science", "An introduction."),
			"0360212/01": detailPage("Object-Oriented Programming", "Classes and objects."),
		},
		failSummary: "0360140/01",
	}

	corpus, err := newOrchestrator(t, p).BuildCorpus(context.Background())
	if err == nil {
		t.Fatalf("expected build failure, got corpus with %d terms", len(corpus))
	}
	if corpus != nil {
		t.Errorf("failed build must not return a partial corpus")
	}

	var te *fetch.TransportError
	if !errors.As(err, &te) {
		t.Errorf("expected TransportError in chain, got %v", err)
	}
}

func TestBuildCorpusFailsOnListedButMissingCourse(t *testing.T) {
	p := &fakePortal{
		terms: termsPage(map[string]string{"20185": "Fall 2018"}),
		courseLists: map[string]string{
			"20185": courseListPage("03-60-100-01"),
		},
		// No detail page: the fake portal answers with its error marker.
		detailPages: map[string]string{},
	}

	if _, err := newOrchestrator(t, p).BuildCorpus(context.Background()); err == nil {
		t.Fatalf("expected build failure for course the portal refuses to serve")
	}
}

func TestScrapeDetail(t *testing.T) {
	p := &fakePortal{
		detailPages: map[string]string{
			"0360100/01": detailPage("Key Concepts in Computer Science", "An introduction."),
		},
		instructors: instructorsPage("Jane Doe", "jdoe@uwindsor.ca"),
		sections:    sectionsPage("03-60-100-01", "03-60-100-91"),
	}

	d, err := newOrchestrator(t, p).ScrapeDetail(context.Background(), "20185", "03-60-100-01")
	if err != nil {
		t.Fatalf("ScrapeDetail: %v", err)
	}
	if d == nil {
		t.Fatalf("expected detail, got not-found")
	}

	if d.Title != "Key Concepts in Computer Science" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Meets != "TR 1:00PM - 2:20PM" {
		t.Errorf("Meets = %q, want schedule resolved from other-sections row", d.Meets)
	}
	if len(d.Instructors) != 1 || d.Instructors[0].Name != "Jane Doe" {
		t.Errorf("Instructors = %+v", d.Instructors)
	}
	if len(d.Sections) != 2 {
		t.Errorf("got %d sections, want 2", len(d.Sections))
	}
}

func TestScrapeDetailNotFound(t *testing.T) {
	p := &fakePortal{detailPages: map[string]string{}}

	d, err := newOrchestrator(t, p).ScrapeDetail(context.Background(), "20185", "03-99-999-01")
	if err != nil {
		t.Fatalf("not-found must not be an error, got %v", err)
	}
	if d != nil {
		t.Errorf("expected nil detail for nonexistent course")
	}
}

func TestScrapeDetailMalformedCodeIsNotFound(t *testing.T) {
	p := &fakePortal{}

	d, err := newOrchestrator(t, p).ScrapeDetail(context.Background(), "20185", "0360100")
	if err != nil {
		t.Fatalf("malformed code must map to not-found, got %v", err)
	}
	if d != nil {
		t.Errorf("expected nil detail for malformed code")
	}
}

func TestScrapeDetailUnresolvableSchedule(t *testing.T) {
	p := &fakePortal{
		detailPages: map[string]string{
			"0360100/01": detailPage("Key Concepts in Computer Science", "An introduction."),
		},
		instructors: instructorsPage("Jane Doe", "jdoe@uwindsor.ca"),
		// The viewed section is absent from its own course's listing.
		sections: sectionsPage("03-60-100-91"),
	}

	_, err := newOrchestrator(t, p).ScrapeDetail(context.Background(), "20185", "03-60-100-01")
	if !errors.Is(err, ErrScheduleUnresolved) {
		t.Fatalf("expected ErrScheduleUnresolved, got %v", err)
	}
}
