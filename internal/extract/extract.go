// Package extract pulls structured fields out of fetched portal pages.
//
// Every extractor is a stateless function over one document, tied to the
// portal's current markup through a fixed chain of tag/attribute/class
// selectors per field. When the portal changes its markup, only the selector
// paths here need updating. Descendant text nodes are whitespace-normalized
// and joined with single spaces.
//
// Required fields fail the whole extraction with an *Error naming the field.
// Optional fields (note, exam sub-fields, instructor sub-fields) come back
// absent instead. A page carrying the portal's own error marker means the
// requested entity does not exist; callers check IsPortalError before
// extracting and must treat that as "not found", never as a parse failure.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/uwinops/lancer/internal/course"
)

const portletPrefix = "_uwinregistrationcoursesearch_WAR_uwinregistrationtoolsportlet_"

const (
	termSelectID    = portletPrefix + "acadtermCode"
	courseResultsID = portletPrefix + "CourseResults"
	detailsTabID    = portletPrefix + "tabs-details"
	prereqsTabID    = portletPrefix + "tabs-prerequistes" // sic, the portal's own spelling
	examsTabID      = portletPrefix + "tabs-exams"
	otherSectionsID = portletPrefix + "OtherSections"
)

// Error reports a required structural element missing from a page whose shape
// was assumed stable. Field names the selector path that failed.
type Error struct {
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extract: could not locate %s", e.Field)
}

// IsPortalError reports whether the page carries the portal's error marker.
// The portal renders it both for server-side faults and for entities that do
// not exist, so callers interpret it as "not found".
func IsPortalError(doc *goquery.Document) bool {
	return doc.Find(".portlet-msg-error").Length() > 0
}

// text returns the whitespace-normalized text of a selection: all descendant
// text nodes split on whitespace and rejoined with single spaces.
func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// Terms extracts the academic sessions offered on the term-selection page.
// Each term must carry a non-empty display name.
func Terms(doc *goquery.Document) ([]course.Term, error) {
	var terms []course.Term
	var badName bool

	doc.Find("#" + termSelectID + " option").Each(func(_ int, s *goquery.Selection) {
		code, ok := s.Attr("value")
		if !ok || code == "" {
			return
		}
		name := text(s)
		if name == "" {
			badName = true
			return
		}
		terms = append(terms, course.Term{Code: code, Name: name})
	})

	if badName {
		return nil, &Error{Field: "term name"}
	}
	if len(terms) == 0 {
		return nil, &Error{Field: "terms"}
	}
	return terms, nil
}

// CourseCodes extracts the full course-section codes from a term's course
// listing. A result row without a code link fails the extraction.
func CourseCodes(doc *goquery.Document) ([]string, error) {
	var codes []string
	var badRow bool

	doc.Find("#" + courseResultsID + " tbody tr").Each(func(_ int, row *goquery.Selection) {
		code := text(row.Find("td").First().Find("a").First())
		if code == "" {
			badRow = true
			return
		}
		codes = append(codes, code)
	})

	if badRow {
		return nil, &Error{Field: "course code"}
	}
	return codes, nil
}

// Summary extracts the basic fields indexed for search: the course title and
// the long description.
func Summary(doc *goquery.Document) (title, description string, err error) {
	title = strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		return "", "", &Error{Field: "title"}
	}

	details := doc.Find("#" + detailsTabID)
	if details.Length() == 0 {
		return "", "", &Error{Field: "details"}
	}

	return title, text(details.Find("p")), nil
}

// Detail extracts everything the main course-detail page carries: the basic
// fields plus schedule description, session dates, campus, availability,
// value, drop deadline, optional note, prerequisites and exams. Instructors,
// other sections and the resolved meeting time come from separate pages.
func Detail(doc *goquery.Document) (*course.Detail, error) {
	title, description, err := Summary(doc)
	if err != nil {
		return nil, err
	}

	details := doc.Find("#" + detailsTabID)

	d := &course.Detail{
		Title:       title,
		Description: description,
	}

	// The schedule description is the first block of the details tab. It can
	// carry stray whitespace mid-text, hence the normalization.
	d.MeetsDesc = text(details.Find("div").First())
	if d.MeetsDesc == "" {
		return nil, &Error{Field: "meets"}
	}

	required := []struct {
		id   string
		dst  *string
		name string
	}{
		{"dateSessionStartsFormatted", &d.Starts, "starts"},
		{"dateSessionEndsFormatted", &d.Ends, "ends"},
		{"courseSectionInfo_campus", &d.Campus, "campus"},
		{"courseSectionInfo_sectionAvailability", &d.Availability, "availability"},
		{"courseSectionInfo_courseValue", &d.CourseValue, "course_value"},
		{"dateDropsCloseFormatted", &d.DateDropsClose, "date_drops_close"},
	}
	for _, f := range required {
		v := strings.TrimSpace(details.Find("#" + f.id).First().Text())
		if v == "" {
			return nil, &Error{Field: f.name}
		}
		*f.dst = v
	}

	// Optional note.
	if note := details.Find(".uwinNoteText"); note.Length() > 0 {
		d.Note = text(note.First())
	}

	doc.Find("#" + prereqsTabID + " li").Each(func(_ int, li *goquery.Selection) {
		d.Prereqs = append(d.Prereqs, text(li))
	})

	exams, err := exams(doc)
	if err != nil {
		return nil, err
	}
	d.Exams = exams

	return d, nil
}

// exams extracts the exam table rows. Only the exam type is required; the
// portal omits the trailing columns for exam types that need no scheduling.
func exams(doc *goquery.Document) ([]course.Exam, error) {
	var out []course.Exam
	var badRow bool

	doc.Find("#" + examsTabID + " tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header row
		}
		cells := row.Find("td").Map(func(_ int, td *goquery.Selection) string {
			return text(td)
		})
		if len(cells) == 0 || cells[0] == "" {
			badRow = true
			return
		}

		cell := func(i int) string {
			if i < len(cells) {
				return cells[i]
			}
			return ""
		}
		out = append(out, course.Exam{
			Type:     cell(0),
			Slot:     cell(1),
			Date:     cell(2),
			Time:     cell(3),
			Building: cell(4),
			Room:     cell(5),
			Area:     cell(6),
		})
	})

	if badRow {
		return nil, &Error{Field: "exams"}
	}
	return out, nil
}

// Instructors extracts the instructor listing. Each entry needs a name; the
// contact sub-fields are whatever the portal chose to render.
func Instructors(doc *goquery.Document) ([]course.Instructor, error) {
	var out []course.Instructor
	var badRow bool

	doc.Find("ul li").Each(func(_ int, li *goquery.Selection) {
		name := strings.TrimSpace(li.Find("b").First().Text())
		if name == "" {
			badRow = true
			return
		}

		info := li.Find("div .wwctrl").Map(func(_ int, s *goquery.Selection) string {
			return text(s)
		})
		field := func(i int) string {
			if i < len(info) {
				return info[i]
			}
			return ""
		}
		out = append(out, course.Instructor{
			Name:       name,
			Title:      field(0),
			Department: field(1),
			Phone:      field(2),
			Email:      field(3),
		})
	})

	if badRow {
		return nil, &Error{Field: "instructors"}
	}
	return out, nil
}

// Sections extracts the "other sections" listing for a course number. Every
// row must carry the popup link and the four schedule columns.
func Sections(doc *goquery.Document) ([]course.Section, error) {
	var out []course.Section
	var badRow bool

	doc.Find("#" + otherSectionsID + " > table > tbody > tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td")
		link := cols.First().Find("a.uwinPopupLink").First()

		url, ok := link.Attr("href")
		code := strings.TrimSpace(link.Text())
		if !ok || code == "" || cols.Length() < 5 {
			badRow = true
			return
		}

		out = append(out, course.Section{
			URL:     url,
			Code:    code,
			Title:   text(cols.Eq(1)),
			Meets:   text(cols.Eq(2)),
			Session: text(cols.Eq(3)),
			Status:  text(cols.Eq(4)),
		})
	})

	if badRow {
		return nil, &Error{Field: "sections"}
	}
	return out, nil
}
