package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the Russian corporate profit tax rate.
const DefaultTaxRate = 0.25

// Company holds forecast and balance figures for a fair value estimate.
// Monetary values share one unit (for example billions of roubles) and
// SharesOutstanding uses the matching scale. Zero optional fields are
// treated as unknown.
type Company struct {
	Name string `yaml:"name" json:"name"`

	ProjectedNetProfit float64 `yaml:"projected_net_profit" json:"projected_net_profit"`
	HistoricalPE       float64 `yaml:"historical_pe" json:"historical_pe"`
	SharesOutstanding  float64 `yaml:"shares_outstanding" json:"shares_outstanding"`

	Revenue           float64 `yaml:"revenue" json:"revenue"`
	OperatingExpenses float64 `yaml:"operating_expenses" json:"operating_expenses"`
	NetDebt           float64 `yaml:"net_debt" json:"net_debt"`
	InterestRate      float64 `yaml:"interest_rate" json:"interest_rate"`

	TotalAssets  float64 `yaml:"total_assets" json:"total_assets"`
	TotalEquity  float64 `yaml:"total_equity" json:"total_equity"`
	EBITDA       float64 `yaml:"ebitda" json:"ebitda"`
	FreeCashFlow float64 `yaml:"free_cash_flow" json:"free_cash_flow"`
	MarketCap    float64 `yaml:"market_cap" json:"market_cap"`

	// TaxRate defaults to DefaultTaxRate when nil.
	TaxRate *float64 `yaml:"tax_rate" json:"tax_rate"`
}

func (c Company) taxRate() float64 {
	if c.TaxRate == nil {
		return DefaultTaxRate
	}
	return *c.TaxRate
}

// ForecastProfit is revenue less operating and interest expenses, after tax.
func (c Company) ForecastProfit() float64 {
	interest := c.NetDebt * c.InterestRate
	ebt := c.Revenue - c.OperatingExpenses - interest
	return ebt * (1 - c.taxRate())
}

// FairPrice is the forecast profit at the historical P/E per share,
// rounded to kopecks.
func (c Company) FairPrice() (float64, error) {
	if c.SharesOutstanding <= 0 {
		return 0, fmt.Errorf("%s: shares outstanding must be positive", c.Name)
	}
	return round2(c.ForecastProfit() * c.HistoricalPE / c.SharesOutstanding), nil
}

// Multiple is one named valuation ratio.
type Multiple struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Multiples returns the ratios whose inputs are known, in a fixed order.
func (c Company) Multiples() []Multiple {
	var out []Multiple
	add := func(name string, a, b float64) {
		out = append(out, Multiple{Name: name, Value: round2(a / b)})
	}

	if c.MarketCap != 0 && c.ProjectedNetProfit != 0 {
		add("P/E", c.MarketCap, c.ProjectedNetProfit)
	}
	if c.MarketCap != 0 && c.TotalEquity != 0 {
		add("P/BV", c.MarketCap, c.TotalEquity)
	}
	if c.MarketCap != 0 && c.FreeCashFlow != 0 {
		add("P/FCF", c.MarketCap, c.FreeCashFlow)
	}
	if c.NetDebt != 0 && c.EBITDA != 0 {
		add("Net Debt/EBITDA", c.NetDebt, c.EBITDA)
	}
	if c.TotalEquity != 0 {
		add("Debt/Equity", c.NetDebt, c.TotalEquity)
	}
	if c.TotalAssets != 0 {
		add("Debt/Assets", c.NetDebt, c.TotalAssets)
	}
	return out
}

func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
