package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Tradier endpoints.
const (
	TradierSandboxURL    = "https://sandbox.tradier.com/v1"
	TradierProductionURL = "https://api.tradier.com/v1"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierConfig configures the Tradier adapter. Zero values select the
// sandbox-appropriate defaults.
type TradierConfig struct {
	APIKey            string
	BaseURL           string
	Client            *http.Client
	Sandbox           bool
	RequestsPerMinute int
	Timeout           time.Duration
}

// TradierProvider reads quotes, chains, history and the corporate calendar
// from the Tradier REST API.
type TradierProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
	apiKey  string
	baseURL string
	sandbox bool
}

var (
	_ MarketData       = (*TradierProvider)(nil)
	_ EarningsCalendar = (*TradierProvider)(nil)
)

// NewTradierProvider creates an adapter. Sandbox accounts default to 120
// requests per minute, production to 500.
func NewTradierProvider(cfg TradierConfig, logger *logrus.Logger) *TradierProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Sandbox {
			baseURL = TradierSandboxURL
		} else {
			baseURL = TradierProductionURL
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 500
		if cfg.Sandbox {
			rpm = 120
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &TradierProvider{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 5),
		logger:  logger,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		sandbox: cfg.Sandbox,
	}
}

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[tradierQuote] `json:"quote"`
	} `json:"quotes"`
}

type tradierQuote struct {
	Symbol        string  `json:"symbol"`
	Last          float64 `json:"last"`
	Bid           float64 `json:"bid"`
	Ask           float64 `json:"ask"`
	Volume        int64   `json:"volume"`
	AverageVolume int64   `json:"average_volume"`
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

type optionChainResponse struct {
	Options struct {
		Option singleOrArray[tradierOption] `json:"option"`
	} `json:"options"`
}

type tradierOption struct {
	Greeks         *tradierGreeks `json:"greeks,omitempty"`
	Symbol         string         `json:"symbol"`
	OptionType     string         `json:"option_type"`
	ExpirationDate string         `json:"expiration_date"`
	Bid            float64        `json:"bid"`
	Ask            float64        `json:"ask"`
	Last           float64        `json:"last"`
	Strike         float64        `json:"strike"`
	Volume         int64          `json:"volume"`
	OpenInterest   int64          `json:"open_interest"`
}

type tradierGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	BidIV float64 `json:"bid_iv"`
	MidIV float64 `json:"mid_iv"`
	AskIV float64 `json:"ask_iv"`
	SmvIV float64 `json:"smv_vol"`
}

type historyResponse struct {
	History struct {
		Day singleOrArray[struct {
			Date   string  `json:"date"`
			Open   float64 `json:"open"`
			High   float64 `json:"high"`
			Low    float64 `json:"low"`
			Close  float64 `json:"close"`
			Volume int64   `json:"volume"`
		}] `json:"day"`
	} `json:"history"`
}

type calendarsResponse []struct {
	Request string `json:"request"`
	Results []struct {
		Tables struct {
			CorporateCalendars singleOrArray[corporateEvent] `json:"corporate_calendars"`
		} `json:"tables"`
	} `json:"results"`
}

type corporateEvent struct {
	BeginDateTime string `json:"begin_date_time"`
	Event         string `json:"event"`
	EventStatus   string `json:"event_status"`
}

// GetQuote retrieves the current market quote for a symbol.
func (t *TradierProvider) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	var response quotesResponse
	if err := t.get(ctx, "/markets/quotes", params, &response); err != nil {
		return nil, err
	}
	if len(response.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("%w: no quote for %s", ErrNotFound, symbol)
	}
	q := response.Quotes.Quote[0]
	return &Quote{
		Symbol:        q.Symbol,
		Last:          q.Last,
		Bid:           q.Bid,
		Ask:           q.Ask,
		Volume:        q.Volume,
		AverageVolume: q.AverageVolume,
	}, nil
}

// GetExpirations retrieves available expiration dates for options on a symbol.
func (t *TradierProvider) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")

	var response expirationsResponse
	if err := t.get(ctx, "/markets/options/expirations", params, &response); err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(response.Expirations.Date))
	for _, d := range response.Expirations.Date {
		exp, err := time.Parse(dateLayout, d)
		if err != nil {
			return nil, fmt.Errorf("failed to parse expiration %s: %w", d, err)
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// GetOptionChain retrieves the chain for one expiration. Implied volatility
// comes from the mid IV in the greeks block.
func (t *TradierProvider) GetOptionChain(ctx context.Context, symbol string, expiration time.Time) (models.OptionChain, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration.Format(dateLayout))
	params.Set("greeks", "true")

	var response optionChainResponse
	if err := t.get(ctx, "/markets/options/chains", params, &response); err != nil {
		return models.OptionChain{}, err
	}

	chain := models.OptionChain{Expiration: expiration}
	for _, o := range response.Options.Option {
		q := models.OptionQuote{
			Expiration:   expiration,
			Symbol:       o.Symbol,
			OptionType:   models.OptionType(strings.ToLower(o.OptionType)),
			Strike:       o.Strike,
			Bid:          o.Bid,
			Ask:          o.Ask,
			LastPrice:    o.Last,
			Volume:       o.Volume,
			OpenInterest: o.OpenInterest,
		}
		if o.Greeks != nil {
			q.ImpliedVolatility = o.Greeks.MidIV
			if q.ImpliedVolatility <= 0 {
				q.ImpliedVolatility = o.Greeks.SmvIV
			}
			q.Greeks = &models.Greeks{
				Delta: o.Greeks.Delta,
				Gamma: o.Greeks.Gamma,
				Theta: o.Greeks.Theta,
				Vega:  o.Greeks.Vega,
			}
		}
		switch q.OptionType {
		case models.OptionTypeCall:
			chain.Calls = append(chain.Calls, q)
		case models.OptionTypePut:
			chain.Puts = append(chain.Puts, q)
		default:
			t.logger.WithFields(logrus.Fields{"symbol": o.Symbol, "type": o.OptionType}).Warn("skipping option with unknown type")
		}
	}
	sort.Slice(chain.Calls, func(i, j int) bool { return chain.Calls[i].Strike < chain.Calls[j].Strike })
	sort.Slice(chain.Puts, func(i, j int) bool { return chain.Puts[i].Strike < chain.Puts[j].Strike })
	return chain, nil
}

// GetHistory retrieves daily bars for a symbol.
func (t *TradierProvider) GetHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.OHLCBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format(dateLayout))
	params.Set("end", end.Format(dateLayout))

	var response historyResponse
	if err := t.get(ctx, "/markets/history", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}

	bars := make([]models.OHLCBar, 0, len(response.History.Day))
	for _, day := range response.History.Day {
		date, err := time.Parse(dateLayout, day.Date)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date %s: %w", day.Date, err)
		}
		bars = append(bars, models.OHLCBar{
			Date:   date,
			Open:   day.Open,
			High:   day.High,
			Low:    day.Low,
			Close:  day.Close,
			Volume: day.Volume,
		})
	}
	return bars, nil
}

// NextEarnings scans the corporate calendar for the first earnings event on
// or after today. Tradier does not publish release timing.
func (t *TradierProvider) NextEarnings(ctx context.Context, symbol string) (*models.EarningsEvent, error) {
	params := url.Values{}
	params.Set("symbols", symbol)

	var response calendarsResponse
	if err := t.getURL(ctx, t.betaURL()+"/markets/fundamentals/calendars", params, &response); err != nil {
		return nil, err
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	var next *models.EarningsEvent
	for _, req := range response {
		for _, res := range req.Results {
			for _, ev := range res.Tables.CorporateCalendars {
				if !strings.Contains(strings.ToLower(ev.Event), "earnings") {
					continue
				}
				date, err := time.Parse(dateLayout, ev.BeginDateTime)
				if err != nil || date.Before(today) {
					continue
				}
				if next == nil || date.Before(next.Date) {
					next = &models.EarningsEvent{
						Date:      date,
						Symbol:    strings.ToUpper(symbol),
						Timing:    models.TimingUnknown,
						Confirmed: strings.EqualFold(ev.EventStatus, "confirmed"),
					}
				}
			}
		}
	}
	if next == nil {
		return nil, fmt.Errorf("%w for %s", ErrNoEarnings, symbol)
	}
	return next, nil
}

// betaURL maps the versioned base URL onto the beta fundamentals API.
func (t *TradierProvider) betaURL() string {
	if strings.HasSuffix(t.baseURL, "/v1") {
		return strings.TrimSuffix(t.baseURL, "/v1") + "/beta"
	}
	return t.baseURL
}

func (t *TradierProvider) get(ctx context.Context, path string, params url.Values, response any) error {
	return t.getURL(ctx, t.baseURL+path, params, response)
}

// getURL makes a rate-limited GET with context support for timeout/cancellation
func (t *TradierProvider) getURL(ctx context.Context, endpoint string, params url.Values, response any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "ivcrush/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("failed to close response body")
		}
	}()

	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		ct := resp.Header.Get("Content-Type")
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s (%s) -> %s (retry-after: %s)", endpoint, ct, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s (%s) -> %s", endpoint, ct, string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
