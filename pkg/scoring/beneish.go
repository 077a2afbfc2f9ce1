// Package scoring computes financial diagnostics from reported figures:
// the Beneish M-Score for earnings manipulation risk and a P/E based fair
// price with common multiples.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/Sternrassler/moex-iss-client/pkg/iss"
)

// Threshold is the M-Score above which manipulation is suspected.
const Threshold = -2.22

// Period holds one year of reported figures. Balance sheet items are taken
// at year end; Depreciation is accumulated depreciation so that
// Depreciation+PPE approximates gross PP&E.
type Period struct {
	Year             int     `yaml:"year" json:"year"`
	Revenue          float64 `yaml:"revenue" json:"revenue"`
	Receivables      float64 `yaml:"receivables" json:"receivables"`
	COGS             float64 `yaml:"cogs" json:"cogs"`
	CurrentAssets    float64 `yaml:"current_assets" json:"current_assets"`
	TotalAssets      float64 `yaml:"total_assets" json:"total_assets"`
	Depreciation     float64 `yaml:"depreciation" json:"depreciation"`
	PPE              float64 `yaml:"ppe" json:"ppe"`
	SGA              float64 `yaml:"sg_and_a" json:"sg_and_a"`
	TotalLiabilities float64 `yaml:"total_liabilities" json:"total_liabilities"`
	NetIncome        float64 `yaml:"net_income" json:"net_income"`
	CashFromOps      float64 `yaml:"cash_from_ops" json:"cash_from_ops"`
}

// RequiredColumns are the dataset columns FromDataset reads.
var RequiredColumns = []string{
	"revenue", "receivables", "cogs", "current_assets", "total_assets",
	"depreciation", "ppe", "sg_and_a", "total_liabilities", "net_income", "cash_from_ops",
}

// BeneishResult holds the eight indices and the M-Score of one period.
// Indices are NaN for the first period and wherever a denominator is zero.
type BeneishResult struct {
	Year int

	DSRI float64
	GMI  float64
	AQI  float64
	SGI  float64
	DEPI float64
	SGAI float64
	LVGI float64
	TATA float64

	MScore float64
	Flag   bool
}

// Complete reports whether the M-Score could be computed.
func (r BeneishResult) Complete() bool {
	return !math.IsNaN(r.MScore)
}

// div divides a by b, returning NaN when b is zero or NaN.
func div(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return math.NaN()
	}
	return a / b
}

// ComputeBeneish scores each period against the one before it.
// periods must be in chronological order.
func ComputeBeneish(periods []Period) []BeneishResult {
	out := make([]BeneishResult, len(periods))
	for i, t := range periods {
		if i == 0 {
			nan := math.NaN()
			out[i] = BeneishResult{
				Year: t.Year,
				DSRI: nan, GMI: nan, AQI: nan, SGI: nan,
				DEPI: nan, SGAI: nan, LVGI: nan,
				TATA:   div(t.NetIncome-t.CashFromOps, t.TotalAssets),
				MScore: nan,
			}
			continue
		}
		out[i] = beneish(periods[i-1], t)
	}
	return out
}

func beneish(p, t Period) BeneishResult {
	r := BeneishResult{Year: t.Year}

	r.DSRI = div(div(t.Receivables, t.Revenue), div(p.Receivables, p.Revenue))
	r.GMI = div(div(p.Revenue-p.COGS, p.Revenue), div(t.Revenue-t.COGS, t.Revenue))
	r.AQI = div(1-div(t.CurrentAssets, t.TotalAssets), 1-div(p.CurrentAssets, p.TotalAssets))
	r.SGI = div(t.Revenue, p.Revenue)
	r.DEPI = div(div(p.Depreciation, p.Depreciation+p.PPE), div(t.Depreciation, t.Depreciation+t.PPE))
	r.SGAI = div(div(t.SGA, t.Revenue), div(p.SGA, p.Revenue))
	r.LVGI = div(div(t.TotalLiabilities, t.TotalAssets), div(p.TotalLiabilities, p.TotalAssets))
	r.TATA = div(t.NetIncome-t.CashFromOps, t.TotalAssets)

	r.MScore = -4.84 +
		0.92*r.DSRI +
		0.528*r.GMI +
		0.404*r.AQI +
		0.892*r.SGI +
		0.115*r.DEPI -
		0.172*r.SGAI +
		4.679*r.TATA -
		0.327*r.LVGI

	// NaN compares false, so an incomplete score never flags
	r.Flag = r.MScore > Threshold
	return r
}

// FromDataset reads one period per row. Column names are matched
// case-insensitively; a "year" column is used when present, otherwise
// periods are numbered from 1. Empty cells read as NaN, so every index
// that depends on them is NaN too.
func FromDataset(ds *iss.Dataset) ([]Period, error) {
	var missing []string
	for _, name := range RequiredColumns {
		if _, err := ds.Index(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	_, yearErr := ds.Index("year")

	periods := make([]Period, ds.Len())
	for i := range ds.Rows {
		get := func(name string) float64 {
			f, ok, _ := ds.Float(i, name)
			if !ok {
				return math.NaN()
			}
			return f
		}
		p := Period{
			Year:             i + 1,
			Revenue:          get("revenue"),
			Receivables:      get("receivables"),
			COGS:             get("cogs"),
			CurrentAssets:    get("current_assets"),
			TotalAssets:      get("total_assets"),
			Depreciation:     get("depreciation"),
			PPE:              get("ppe"),
			SGA:              get("sg_and_a"),
			TotalLiabilities: get("total_liabilities"),
			NetIncome:        get("net_income"),
			CashFromOps:      get("cash_from_ops"),
		}
		if yearErr == nil {
			if y, ok, _ := ds.Float(i, "year"); ok {
				p.Year = int(y)
			}
		}
		periods[i] = p
	}
	return periods, nil
}

var indexNotes = []struct {
	name string
	note string
	get  func(BeneishResult) float64
}{
	{"DSRI", "receivables to sales growth; above 1 receivables outpace sales", func(r BeneishResult) float64 { return r.DSRI }},
	{"GMI", "gross margin index; above 1 the margin is shrinking", func(r BeneishResult) float64 { return r.GMI }},
	{"AQI", "asset quality; above 1 more assets are non-current and soft", func(r BeneishResult) float64 { return r.AQI }},
	{"SGI", "sales growth; fast growth raises the pressure to flatter results", func(r BeneishResult) float64 { return r.SGI }},
	{"DEPI", "depreciation index; above 1 depreciation is slowing", func(r BeneishResult) float64 { return r.DEPI }},
	{"SGAI", "SG&A to sales; above 1 overhead grows faster than sales", func(r BeneishResult) float64 { return r.SGAI }},
	{"LVGI", "leverage; above 1 the liability share is rising", func(r BeneishResult) float64 { return r.LVGI }},
	{"TATA", "accruals to assets; higher means profit is less backed by cash", func(r BeneishResult) float64 { return r.TATA }},
}

// BeneishReport renders a plain text explanation of one result.
func BeneishReport(r BeneishResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Year %d: Beneish M-Score\n", r.Year)
	if !r.Complete() {
		b.WriteString("  Not enough data (no previous period or a zero denominator).\n")
		return b.String()
	}

	for _, n := range indexNotes {
		fmt.Fprintf(&b, "  %-4s = %.3f  %s\n", n.name, n.get(r), n.note)
	}
	fmt.Fprintf(&b, "  M    = %.3f\n", r.MScore)
	if r.Flag {
		fmt.Fprintf(&b, "  M > %.2f: elevated probability of manipulation\n", Threshold)
	} else {
		fmt.Fprintf(&b, "  M <= %.2f: no sign of manipulation\n", Threshold)
	}
	return b.String()
}
