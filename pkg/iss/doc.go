// Package iss models the MOEX Informational & Statistical Server (ISS) JSON
// format and provides name-based access to its tabular blocks.
//
// Every ISS response is a JSON object whose top-level keys are section names
// ("securities", "marketdata", "description", "candles", ...). Each section
// holds a column list and a list of rows:
//
//	{
//	  "securities": {
//	    "columns": ["secid", "shortname", "isin"],
//	    "data": [["RU000A0JX0J2", "ОФЗ 26207", "RU000A0JX0J2"], ...]
//	  }
//	}
//
// The API does not guarantee a stable column order (or even a stable column
// set) between releases, so all cell access in this module goes through
// ColumnIndex and never through hardcoded positions.
//
// # Basic Usage
//
//	doc, err := iss.Decode(body)
//	page, err := doc.Page("securities")
//	secids, err := page.Strings("secid")
//
// A Dataset is the concatenation of all pages of one paginated query. It is
// produced by the pagination package and consumed by the calculators and the
// report package.
package iss
