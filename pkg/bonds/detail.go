package bonds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/Sternrassler/moex-iss-client/pkg/iss"
)

// Detail is the per-bond result of a sweep.
type Detail struct {
	SecID string `json:"secid"`

	// Yield is nil when ISS publishes no numeric yield.
	Yield *float64 `json:"yield"`

	// Rating is Unrated when Rated is false.
	Rating string `json:"rating"`
	Rated  bool   `json:"rated"`

	// Available is false when the detail fetch gave up; Err holds the cause.
	Available bool  `json:"available"`
	Err       error `json:"-"`

	// Attempts is the number of tries the detail fetch took.
	Attempts int `json:"attempts"`
}

func marketdataPath(secid string) string {
	return fmt.Sprintf("/engines/stock/markets/bonds/securities/%s/marketdata.json", url.PathEscape(secid))
}

func descriptionPath(secid string) string {
	return fmt.Sprintf("/securities/%s/description.json", url.PathEscape(secid))
}

// Detail fetches yield and rating of one bond. Both requests form a single
// attempt of the detail policy. Failure is reported in the result, never as
// an error: the caller moves on to the next bond.
func (s *Service) Detail(ctx context.Context, secid string) Detail {
	d := Detail{SecID: secid, Rating: Unrated}
	params := url.Values{"iss.meta": {"off"}}

	err := s.cfg.DetailPolicy.Do(ctx, secid, func(ctx context.Context) error {
		d.Attempts++

		md, err := s.fetchSection(ctx, marketdataPath(secid), "marketdata", params)
		if err != nil {
			return err
		}
		desc, err := s.fetchSection(ctx, descriptionPath(secid), "description", params)
		if err != nil {
			return err
		}

		d.Yield = yieldOf(md)
		if rating, ok := FindRating(desc); ok {
			d.Rating, d.Rated = rating, true
		} else {
			d.Rating, d.Rated = Unrated, false
		}
		return nil
	})
	if err != nil {
		d.Available = false
		d.Err = err
		d.Yield = nil
		d.Rating, d.Rated = Unrated, false
		s.logger.Warn().
			Err(err).
			Str("secid", secid).
			Int("attempts", d.Attempts).
			Msg("Bond details unavailable")
		return d
	}

	d.Available = true
	return d
}

// fetchSection returns nil without error when the response is malformed or
// lacks the section; transport and status errors are returned for retry.
func (s *Service) fetchSection(ctx context.Context, path, section string, params url.Values) (*iss.Page, error) {
	doc, err := s.client.GetDocument(ctx, path, params)
	if err != nil {
		if errors.Is(err, iss.ErrMalformedResponse) {
			s.logger.Debug().Err(err).Str("path", path).Msg("Malformed response")
			return nil, nil
		}
		return nil, err
	}
	page, err := doc.Page(section)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", path).Str("section", section).Msg("Section unusable")
		return nil, nil
	}
	return page, nil
}

// yieldOf reads YIELD from the first marketdata row. Only JSON numbers count.
func yieldOf(page *iss.Page) *float64 {
	if page.Empty() {
		return nil
	}
	v, err := page.Value(0, "YIELD")
	if err != nil {
		return nil
	}

	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = x
	default:
		return nil
	}
	return &f
}
