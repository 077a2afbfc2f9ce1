package bonds

import (
	"strings"

	"github.com/Sternrassler/moex-iss-client/pkg/iss"
)

// Unrated groups bonds whose description carries no credit rating.
const Unrated = "unrated"

// RatingFields are the description names that carry a credit rating, in
// lookup order. Matching is case-insensitive.
var RatingFields = []string{"creditrating", "credit_rating", "rating"}

// FindRating returns the first non-empty rating in a description page.
// The page holds one row per attribute with name and value columns.
func FindRating(page *iss.Page) (string, bool) {
	if page.Empty() {
		return "", false
	}
	nameIdx, err := page.Index("name")
	if err != nil {
		return "", false
	}
	valueIdx, err := page.Index("value")
	if err != nil {
		return "", false
	}

	for _, field := range RatingFields {
		for _, row := range page.Rows {
			name, ok := iss.AsString(row[nameIdx])
			if !ok || !strings.EqualFold(name, field) {
				continue
			}
			value, ok := iss.AsString(row[valueIdx])
			if !ok {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}
	return "", false
}
