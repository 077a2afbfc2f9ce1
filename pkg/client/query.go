package client

import (
	"net/url"
	"strconv"
)

const (
	// DefaultPath is the securities listing path.
	DefaultPath = "/securities.json"

	// DefaultSection is the section read from listing responses.
	DefaultSection = "securities"
)

// Query describes one paginated ISS listing.
type Query struct {
	// Path relative to the base URL. Defaults to DefaultPath.
	Path string

	// Section is the response section holding the rows. Defaults to DefaultSection.
	Section string

	// Engine and Market narrow the listing ("stock", "bonds").
	Engine string
	Market string

	// Board sets filter=boardid=<Board> when Filter is empty.
	Board string

	// Filter is passed verbatim as the filter parameter.
	Filter string

	// Meta requests column metadata (iss.meta=on).
	Meta bool

	// Params are added as-is (from, till, interval, date, ...).
	Params url.Values
}

func (q Query) path() string {
	if q.Path == "" {
		return DefaultPath
	}
	return q.Path
}

func (q Query) section() string {
	if q.Section == "" {
		return DefaultSection
	}
	return q.Section
}

// SectionName returns the section this query reads.
func (q Query) SectionName() string {
	return q.section()
}

// Values builds the request parameters for the page at start.
func (q Query) Values(start int) url.Values {
	v := url.Values{}
	for name, vals := range q.Params {
		v[name] = append([]string(nil), vals...)
	}
	if q.Engine != "" {
		v.Set("engine", q.Engine)
	}
	if q.Market != "" {
		v.Set("market", q.Market)
	}
	switch {
	case q.Filter != "":
		v.Set("filter", q.Filter)
	case q.Board != "":
		v.Set("filter", "boardid="+q.Board)
	}
	if q.Meta {
		v.Set("iss.meta", "on")
	} else {
		v.Set("iss.meta", "off")
	}
	v.Set("start", strconv.Itoa(start))
	return v
}
