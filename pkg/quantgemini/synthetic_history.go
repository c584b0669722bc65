package quantgemini

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryPoints    = 6
	DefaultHistoryJitter    = 0.05
	DefaultHistoryBasePrice = 150.0

	// MinHistoryPoints is the shortest series a caller ever receives.
	MinHistoryPoints   = 3
	historyLabelLayout = "Jan 2"
)

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.]`)
	leadingNumber = regexp.MustCompile(`^\d*\.?\d*`)
)

// HistoryOptions configures the synthetic history generator.
type HistoryOptions struct {
	Points int
	// Jitter is the half width of the random band around the base price,
	// 0.05 meaning every point lies within ±5%.
	Jitter           float64
	DefaultBasePrice float64
}

// HistoryGenerator fabricates a short placeholder price series from a
// display price. Output is random by design and must never be presented as
// market data.
type HistoryGenerator struct {
	points      int
	jitter      decimal.Decimal
	defaultBase decimal.Decimal
	now         func() time.Time
	random      func() float64
}

// NewHistoryGenerator returns a generator, filling unset or out of range
// options with the defaults.
func NewHistoryGenerator(opts HistoryOptions) *HistoryGenerator {
	points := opts.Points
	if points < MinHistoryPoints {
		points = DefaultHistoryPoints
	}
	jitter := opts.Jitter
	if jitter <= 0 || jitter >= 1 {
		jitter = DefaultHistoryJitter
	}
	base := opts.DefaultBasePrice
	if base <= 0 {
		base = DefaultHistoryBasePrice
	}
	return &HistoryGenerator{
		points:      points,
		jitter:      decimal.NewFromFloat(jitter),
		defaultBase: decimal.NewFromFloat(base),
		now:         time.Now,
		random:      rand.Float64,
	}
}

// Points returns the configured series length.
func (g *HistoryGenerator) Points() int {
	return g.points
}

// ParseBasePrice strips everything except digits and dots from a display
// price and parses the longest number at the start of the rest, so "$182.30."
// reads as 182.30 and "1.2.3" as 1.2. ok is false when no positive number
// leads the remainder.
func ParseBasePrice(display string) (price decimal.Decimal, ok bool) {
	digits := leadingNumber.FindString(nonPriceChars.ReplaceAllString(display, ""))
	digits = strings.TrimSuffix(digits, ".")
	if strings.HasPrefix(digits, ".") {
		digits = "0" + digits
	}
	if digits == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(digits)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// Generate returns n points ending today, one day apart, oldest first.
// n <= 0 selects the configured length.
func (g *HistoryGenerator) Generate(currentPrice string, n int) []HistoryPoint {
	if n <= 0 {
		n = g.points
	}
	base, ok := ParseBasePrice(currentPrice)
	if !ok {
		base = g.defaultBase
	}

	today := g.now()
	low := decimal.NewFromInt(1).Sub(g.jitter)
	width := g.jitter.Mul(decimal.NewFromInt(2))

	points := make([]HistoryPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i)
		factor := low.Add(width.Mul(decimal.NewFromFloat(g.random())))
		points = append(points, HistoryPoint{
			Time:  day.Format(historyLabelLayout),
			Price: Amount{base.Mul(factor).Round(2)},
		})
	}
	return points
}

// PlaceholderHistory returns a synthetic series for ticker. When price is
// empty the latest stored analysis supplies it.
func (c *Core) PlaceholderHistory(ticker, price string) ([]HistoryPoint, error) {
	if price == "" && ticker != "" {
		latest, err := c.GetLatestAnalysis(ticker)
		if err != nil {
			return nil, err
		}
		if latest != nil {
			price = latest.CurrentPrice
		}
	}
	return c.history.Generate(price, 0), nil
}
