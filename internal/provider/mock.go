package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/pricing"
	"github.com/eddiefleurent/ivcrush/internal/util"
)

// mockProfile is the synthetic personality of one symbol. Everything derives
// from a hash of the symbol so repeated runs see the same market.
type mockProfile struct {
	seed         int64
	price        float64
	baseIV       float64 // back-month implied volatility
	earningsBump float64 // extra front-month IV ahead of earnings
	realizedVol  float64
	avgVolume    float64
	earningsIn   int // days from today to the next release
	timing       models.EarningsTiming
	sector       string
}

var mockSectors = []string{"Technology", "Healthcare", "Financials", "Consumer", "Energy", "Industrials"}

// MockProvider generates deterministic chains, bars and earnings dates per
// symbol, priced with Black-Scholes off a term structure that is inverted
// ahead of each release.
type MockProvider struct {
	now     func() time.Time
	pricer  pricing.BlackScholes
	rate    float64
	strikes int // strikes listed either side of ATM
}

var (
	_ MarketData       = (*MockProvider)(nil)
	_ EarningsCalendar = (*MockProvider)(nil)
)

// NewMockProvider creates a mock anchored at the wall clock.
func NewMockProvider() *MockProvider {
	return NewMockProviderAt(time.Now)
}

// NewMockProviderAt creates a mock anchored at a custom clock.
func NewMockProviderAt(now func() time.Time) *MockProvider {
	return &MockProvider{now: now, rate: 0.05, strikes: 8}
}

func (m *MockProvider) today() time.Time {
	return m.now().UTC().Truncate(24 * time.Hour)
}

func (m *MockProvider) profile(symbol string) mockProfile {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	seed := int64(h.Sum64() & math.MaxInt64)
	r := rand.New(rand.NewSource(seed))

	p := mockProfile{
		seed:         seed,
		price:        util.RoundCents(20 + r.Float64()*380),
		baseIV:       0.22 + r.Float64()*0.25,
		earningsBump: 0.15 + r.Float64()*0.45,
		avgVolume:    800_000 + r.Float64()*4_000_000,
		earningsIn:   2 + r.Intn(12),
		sector:       mockSectors[r.Intn(len(mockSectors))],
	}
	p.realizedVol = p.baseIV * (0.55 + r.Float64()*0.5)
	p.timing = models.TimingAMC
	if r.Intn(2) == 0 {
		p.timing = models.TimingBMO
	}
	return p
}

// frontIV is the at-the-money IV for an expiration dte days out. The bump
// decays with time so the curve slopes down from the earnings expiry.
func (p mockProfile) frontIV(dte int) float64 {
	if dte <= p.earningsIn {
		return p.baseIV * 0.9
	}
	return p.baseIV + p.earningsBump*math.Exp(-float64(dte-p.earningsIn)/12)
}

// GetQuote returns the synthetic spot with a one-cent market.
func (m *MockProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrNotFound)
	}
	p := m.profile(symbol)
	return &Quote{
		Symbol:        strings.ToUpper(symbol),
		Sector:        p.sector,
		Last:          p.price,
		Bid:           p.price - 0.01,
		Ask:           p.price + 0.01,
		Volume:        int64(p.avgVolume * 0.9),
		AverageVolume: int64(p.avgVolume),
	}, nil
}

// GetExpirations lists six weekly Fridays followed by three monthly
// expirations.
func (m *MockProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := m.today()
	friday := today.AddDate(0, 0, (int(time.Friday)-int(today.Weekday())+7)%7)
	if !friday.After(today) {
		friday = friday.AddDate(0, 0, 7)
	}
	var out []time.Time
	for i := 0; i < 6; i++ {
		out = append(out, friday.AddDate(0, 0, 7*i))
	}
	last := out[len(out)-1]
	for i := 1; i <= 3; i++ {
		out = append(out, last.AddDate(0, 0, 28*i))
	}
	return out, nil
}

// GetOptionChain prices calls and puts around spot for one expiration.
func (m *MockProvider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return models.OptionChain{}, err
	}
	p := m.profile(symbol)
	dte := models.DaysUntil(m.today(), expiration)
	chain := models.OptionChain{Expiration: expiration}
	if dte < 0 {
		return chain, nil
	}
	atmIV := p.frontIV(dte)
	years := pricing.YearsFromDays(float64(dte))
	inc := util.StrikeIncrement(p.price)
	atm := util.NearestStrike(p.price)
	r := rand.New(rand.NewSource(p.seed + int64(dte)))

	for i := -m.strikes; i <= m.strikes; i++ {
		strike := atm + float64(i)*inc
		if strike <= 0 {
			continue
		}
		moneyness := math.Log(strike / p.price)
		iv := atmIV * (1 + 0.8*moneyness*moneyness) // smile
		oi := int64(50 + r.Intn(5000)/(1+absInt(i)))
		for _, isCall := range []bool{true, false} {
			in := pricing.Input{Spot: p.price, Strike: strike, Years: years, Rate: m.rate, Vol: iv, IsCall: isCall}
			g := m.pricer.Greeks(in)
			mid := math.Max(g.Price, 0.01)
			half := math.Max(0.01, mid*0.02)
			bid := util.RoundCents(math.Max(mid-half, 0.01))
			ask := util.RoundCents(math.Max(mid+half, bid+0.01))
			q := models.OptionQuote{
				Expiration:        expiration,
				Symbol:            occSymbol(symbol, expiration, strike, isCall),
				Strike:            strike,
				Bid:               bid,
				Ask:               ask,
				LastPrice:         util.RoundCents(mid),
				ImpliedVolatility: iv,
				Volume:            oi / 4,
				OpenInterest:      oi,
				Greeks:            &models.Greeks{Delta: g.Delta, Gamma: g.Gamma, Theta: g.Theta, Vega: g.Vega},
			}
			if isCall {
				q.OptionType = models.OptionTypeCall
				chain.Calls = append(chain.Calls, q)
			} else {
				q.OptionType = models.OptionTypePut
				chain.Puts = append(chain.Puts, q)
			}
		}
	}
	return chain, nil
}

// GetHistory returns a seeded random walk ending at the current spot. Bars
// fall on weekdays only.
func (m *MockProvider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := m.profile(symbol)
	start = start.UTC().Truncate(24 * time.Hour)
	end = end.UTC().Truncate(24 * time.Hour)
	if end.After(m.today()) {
		end = m.today()
	}

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return nil, nil
	}

	// Walk backwards from spot so the last close matches the quote.
	r := rand.New(rand.NewSource(p.seed ^ 0x5eed))
	dailyVol := p.realizedVol / math.Sqrt(252)
	bars := make([]models.OHLCBar, len(days))
	closePx := p.price
	for i := len(days) - 1; i >= 0; i-- {
		openPx := closePx * math.Exp(-r.NormFloat64()*dailyVol*0.6)
		hi := math.Max(openPx, closePx) * (1 + math.Abs(r.NormFloat64())*dailyVol*0.5)
		lo := math.Min(openPx, closePx) * (1 - math.Abs(r.NormFloat64())*dailyVol*0.5)
		bars[i] = models.OHLCBar{
			Date:   days[i],
			Open:   util.RoundCents(openPx),
			High:   util.RoundCents(hi),
			Low:    util.RoundCents(lo),
			Close:  util.RoundCents(closePx),
			Volume: int64(p.avgVolume * (0.7 + 0.6*r.Float64())),
		}
		closePx = openPx * math.Exp(-r.NormFloat64()*dailyVol*0.8)
	}
	return bars, nil
}

// NextEarnings returns the synthetic release date for the symbol.
func (m *MockProvider) NextEarnings(ctx context.Context, symbol string) (*models.EarningsEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := m.profile(symbol)
	return &models.EarningsEvent{
		Date:      m.today().AddDate(0, 0, p.earningsIn),
		Symbol:    strings.ToUpper(symbol),
		Timing:    p.timing,
		Confirmed: p.earningsIn <= 7,
	}, nil
}

func occSymbol(symbol string, exp time.Time, strike float64, isCall bool) string {
	cp := "P"
	if isCall {
		cp = "C"
	}
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(symbol), exp.Format("060102"), cp, int64(math.Round(strike*1000)))
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
