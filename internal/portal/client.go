// Package portal issues the fixed set of request shapes against the
// registration portal's course-search portlet. Every request shares the same
// base portlet parameters; each shape adds its own struts action and
// parameters. This layer performs no retries and no caching: each call hits
// the network once and propagates any failure verbatim.
package portal

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// SearchURL is the endpoint of the course-search portlet.
const SearchURL = "https://my.uwindsor.ca/web/uw/course-search"

const portletID = "uwinregistrationcoursesearch_WAR_uwinregistrationtoolsportlet"

// param namespaces a portlet parameter name.
func param(name string) string {
	return "_" + portletID + "_" + name
}

// Fetcher is the transport capability the client consumes.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, query url.Values) (*goquery.Document, error)
	PostForm(ctx context.Context, rawURL string, query, form url.Values) (*goquery.Document, error)
}

// Client fetches raw portal documents for the extractor.
type Client struct {
	fetcher Fetcher
	baseURL string
}

// NewClient creates a portal client. baseURL may be empty, in which case the
// production SearchURL is used; tests point it at an httptest server.
func NewClient(fetcher Fetcher, baseURL string) *Client {
	if baseURL == "" {
		baseURL = SearchURL
	}
	return &Client{fetcher: fetcher, baseURL: baseURL}
}

// baseQuery returns the portlet parameter set shared by every request shape.
func baseQuery() url.Values {
	return url.Values{
		"p_p_id":                     {portletID},
		"p_p_lifecycle":              {"0"},
		"p_p_state":                  {"exclusive"},
		"p_p_mode":                   {"view"},
		"p_p_col_id":                 {"column-1"},
		"p_p_col_count":              {"1"},
		param("struts.portlet.mode"): {"view"},
	}
}

// detailsQuery returns the parameters identifying one course section, shared
// by the detail and instructor shapes.
func detailsQuery(term, activity, section string) url.Values {
	return url.Values{
		param("courseDetailsForm.acadtermCode"): {term},
		param("courseDetailsForm.activityCode"): {activity},
		param("courseDetailsForm.sectionNo"):    {section},
	}
}

func merge(dst url.Values, more ...url.Values) url.Values {
	for _, vs := range more {
		for k, v := range vs {
			dst[k] = v
		}
	}
	return dst
}

// Terms fetches the term-selection page listing the academic sessions the
// portal currently offers.
func (c *Client) Terms(ctx context.Context) (*goquery.Document, error) {
	query := merge(baseQuery(), url.Values{
		param("struts.portlet.action"): {"/courseSearch/viewTermList"},
	})
	return c.fetcher.Get(ctx, c.baseURL, query)
}

// Courses fetches the course listing for one term.
func (c *Client) Courses(ctx context.Context, term string) (*goquery.Document, error) {
	query := merge(baseQuery(), url.Values{
		"p_p_lifecycle":                {"1"},
		"p_p_state":                    {"normal"},
		param("struts.portlet.action"): {"/courseSearch/ExecuteCourseSearch"},
	})
	form := url.Values{
		"acadtermCode":                  {term},
		"advancedSearch":                {"false"},
		"courseSearchForm.acadLevel":    {""},
		"courseSearchForm.courseNumber": {""},
		"courseSearchForm.searchBy":     {"Course"},
		"courseSearchForm.subject":      {" "},
	}
	return c.fetcher.PostForm(ctx, c.baseURL, query, form)
}

// Summary fetches the page carrying a section's title and description. The
// portal serves these on the same view as the full detail shape; the basic
// scrape simply extracts less from it.
func (c *Client) Summary(ctx context.Context, term, activity, section string) (*goquery.Document, error) {
	return c.Details(ctx, term, activity, section)
}

// Details fetches the main course-detail page for one section.
func (c *Client) Details(ctx context.Context, term, activity, section string) (*goquery.Document, error) {
	query := merge(baseQuery(), detailsQuery(term, activity, section), url.Values{
		param("struts.portlet.action"): {"/courseSearch/viewCourseDetails"},
	})
	return c.fetcher.Get(ctx, c.baseURL, query)
}

// Instructors fetches the instructor listing for one section.
func (c *Client) Instructors(ctx context.Context, term, activity, section string) (*goquery.Document, error) {
	query := merge(baseQuery(), detailsQuery(term, activity, section), url.Values{
		param("struts.portlet.action"): {"/courseSearch/viewCourseDetailsInstructors"},
	})
	return c.fetcher.Get(ctx, c.baseURL, query)
}

// OtherSections fetches the alternate-sections listing for a course number.
func (c *Client) OtherSections(ctx context.Context, term, courseNumber string) (*goquery.Document, error) {
	query := merge(baseQuery(), url.Values{
		param("struts.portlet.action"):         {"/courseSearch/executeFindOtherSections"},
		param("acadtermCode"):                  {term},
		param("courseSearchForm.courseNumber"): {courseNumber},
	})
	return c.fetcher.Get(ctx, c.baseURL, query)
}
