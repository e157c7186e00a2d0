package trade

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/models"
)

// UnlimitedRisk is the max-risk label of a short straddle.
const UnlimitedRisk = "UNLIMITED"

// StraddleTrade is a short ATM straddle: sell the call and the put at one
// strike and expiration.
type StraddleTrade struct {
	expiration       time.Time
	call             models.OptionQuote
	put              models.OptionQuote
	symbol           string
	validationErrors []string
	underlying       float64
	netCredit        float64
	dte              int
}

// NewStraddleTrade builds the straddle and runs the feasibility checks.
func NewStraddleTrade(symbol string, underlying float64, call, put models.OptionQuote,
	asOf time.Time, limits Limits) *StraddleTrade {
	s := &StraddleTrade{
		expiration: call.Expiration,
		call:       call,
		put:        put,
		symbol:     symbol,
		underlying: underlying,
		netCredit:  call.MidPrice() + put.MidPrice(),
		dte:        call.DaysToExpiry(asOf),
	}
	if s.netCredit <= 0 {
		s.validationErrors = append(s.validationErrors, fmt.Sprintf("net credit must be positive (got %.2f)", s.netCredit))
	}
	if s.dte <= 0 {
		s.validationErrors = append(s.validationErrors, fmt.Sprintf("expiration must be in the future (%d DTE)", s.dte))
	}
	if !call.Expiration.Equal(put.Expiration) || call.Strike != put.Strike {
		s.validationErrors = append(s.validationErrors, "call and put must share strike and expiration")
	}
	s.validationErrors = append(s.validationErrors, checkLeg("call", call, limits)...)
	s.validationErrors = append(s.validationErrors, checkLeg("put", put, limits)...)
	return s
}

// Symbol returns the underlying symbol.
func (s *StraddleTrade) Symbol() string { return s.symbol }

// Strike is the shared strike.
func (s *StraddleTrade) Strike() float64 { return s.call.Strike }

// Expiration is the shared expiry.
func (s *StraddleTrade) Expiration() time.Time { return s.expiration }

// DTE is the days to expiration.
func (s *StraddleTrade) DTE() int { return s.dte }

// CallOption is the short call leg.
func (s *StraddleTrade) CallOption() models.OptionQuote { return s.call }

// PutOption is the short put leg.
func (s *StraddleTrade) PutOption() models.OptionQuote { return s.put }

// NetCredit is the per-share premium received.
func (s *StraddleTrade) NetCredit() float64 { return s.netCredit }

// MaxProfit is the per-share premium kept if the underlying pins the strike.
func (s *StraddleTrade) MaxProfit() float64 { return s.netCredit }

// BreakevenUpper is strike plus credit.
func (s *StraddleTrade) BreakevenUpper() float64 { return s.Strike() + s.netCredit }

// BreakevenLower is strike minus credit.
func (s *StraddleTrade) BreakevenLower() float64 { return s.Strike() - s.netCredit }

// MaxRisk is always unlimited for a short straddle.
func (s *StraddleTrade) MaxRisk() string { return UnlimitedRisk }

// IsValid reports whether the straddle passed every feasibility check.
func (s *StraddleTrade) IsValid() bool { return len(s.validationErrors) == 0 }

// ValidationErrors returns a copy of the failed checks.
func (s *StraddleTrade) ValidationErrors() []string {
	return append([]string(nil), s.validationErrors...)
}

// MarshalJSON renders the straddle with its derived fields.
func (s *StraddleTrade) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Expiration       time.Time          `json:"expiration"`
		CallOption       models.OptionQuote `json:"call_option"`
		PutOption        models.OptionQuote `json:"put_option"`
		Symbol           string             `json:"symbol"`
		MaxRisk          string             `json:"max_risk"`
		ValidationErrors []string           `json:"validation_errors,omitempty"`
		UnderlyingPrice  float64            `json:"underlying_price"`
		Strike           float64            `json:"strike"`
		NetCredit        float64            `json:"net_credit"`
		MaxProfit        float64            `json:"max_profit"`
		BreakevenUpper   float64            `json:"breakeven_upper"`
		BreakevenLower   float64            `json:"breakeven_lower"`
		DTE              int                `json:"days_to_expiration"`
		IsValid          bool               `json:"is_valid"`
	}{
		Expiration:       s.expiration,
		CallOption:       s.call,
		PutOption:        s.put,
		Symbol:           s.symbol,
		MaxRisk:          UnlimitedRisk,
		ValidationErrors: s.validationErrors,
		UnderlyingPrice:  s.underlying,
		Strike:           s.Strike(),
		NetCredit:        s.netCredit,
		MaxProfit:        s.MaxProfit(),
		BreakevenUpper:   s.BreakevenUpper(),
		BreakevenLower:   s.BreakevenLower(),
		DTE:              s.dte,
		IsValid:          s.IsValid(),
	})
}
