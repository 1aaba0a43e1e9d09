// Package course defines the data model shared by the scraping and indexing
// layers: the indexed summary unit, lightweight query previews, and the full
// detail record fetched on demand.
package course

import (
	"net/url"
	"strings"
)

// DirectoryServicesURL is the base URL for instructor directory profiles.
const DirectoryServicesURL = "http://apps.uwindsor.ca/uwincpb/jsp/DirectoryServicesProfile.jsp?q="

// Term identifies an academic session. The code is opaque to this system:
// the portal assigns it (4-digit year plus a session digit) and echoes it
// back, and no validation happens beyond that round trip.
type Term struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Summary is the indexed unit: one course-section row of a term's listing.
// Code is unique within a term. A Summary is immutable once committed to an
// index snapshot.
type Summary struct {
	Term        string `json:"term"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Corpus is the full collection of summaries scraped for one index build,
// keyed by term code.
type Corpus map[string][]Summary

// Size returns the total number of summaries across all terms.
func (c Corpus) Size() int {
	n := 0
	for _, summaries := range c {
		n += len(summaries)
	}
	return n
}

// Preview is a query result. It carries enough information (Term, Code) to
// re-derive a full Detail without consulting the index again.
type Preview struct {
	Term  string `json:"term"`
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Detail is the full course record assembled from three portal pages. It is
// never persisted; every request recomputes it.
type Detail struct {
	Title          string       `json:"title"`
	Meets          string       `json:"meets"`
	MeetsDesc      string       `json:"meets_desc"`
	Starts         string       `json:"starts"`
	Ends           string       `json:"ends"`
	Campus         string       `json:"campus"`
	Availability   string       `json:"availability"`
	CourseValue    string       `json:"course_value"`
	DateDropsClose string       `json:"date_drops_close"`
	Description    string       `json:"description"`
	Note           string       `json:"note,omitempty"`
	Prereqs        []string     `json:"prereqs,omitempty"`
	Exams          []Exam       `json:"exams,omitempty"`
	Instructors    []Instructor `json:"instructors,omitempty"`
	Sections       []Section    `json:"sections,omitempty"`
}

// Exam is one row of the exams table. The portal omits trailing columns for
// exam types that do not need them.
type Exam struct {
	Type     string `json:"type"`
	Slot     string `json:"slot,omitempty"`
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Building string `json:"building,omitempty"`
	Room     string `json:"room,omitempty"`
	Area     string `json:"area,omitempty"`
}

// Instructor is one entry of the instructor listing. Only the name is
// guaranteed present.
type Instructor struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// DirectoryURL returns the instructor's directory-services profile URL,
// derived from the local part of the email address. It returns "" when no
// email is known.
func (i Instructor) DirectoryURL() string {
	local, _, ok := strings.Cut(i.Email, "@")
	if !ok || local == "" {
		return ""
	}
	return DirectoryServicesURL + url.QueryEscape(local)
}

// Section is one row of the "other sections" listing for a course number. It
// is used transiently to resolve the meeting schedule of the section being
// viewed.
type Section struct {
	URL     string `json:"url"`
	Code    string `json:"code"`
	Title   string `json:"title"`
	Meets   string `json:"meets"`
	Session string `json:"session"`
	Status  string `json:"status"`
}

// SplitCode splits a full course-section code like "03-60-100-01" into the
// activity code the portal expects ("0360100") and the section number ("01").
// ok is false when the code has no section separator.
func SplitCode(code string) (activity, section string, ok bool) {
	i := strings.LastIndex(code, "-")
	if i < 0 {
		return "", "", false
	}
	activity = strings.ReplaceAll(code[:i], "-", "")
	section = code[i+1:]
	return activity, section, true
}
