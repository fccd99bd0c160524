package tradier

import (
	"bytes"

	"github.com/xhhuango/json"
)

// List decodes a Tradier collection. The API sends a bare object instead of
// an array when there is exactly one element.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*l = nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		*l = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = List[T]{one}
	return nil
}

// Bar is one daily OHLCV record.
type Bar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type QuoteHistory struct {
	History struct {
		Day List[Bar] `json:"day"`
	} `json:"history"`
}

type OptionExpirations struct {
	Expirations struct {
		Date List[string] `json:"date"`
	} `json:"expirations"`
}

type Option struct {
	Symbol         string  `json:"symbol"`
	Description    string  `json:"description"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	Volume         int     `json:"volume"`
	OpenInterest   int     `json:"open_interest"`
	ContractSize   int     `json:"contract_size"`
	ExpirationDate string  `json:"expiration_date"`
	OptionType     string  `json:"option_type"`
	RootSymbol     string  `json:"root_symbol"`
}

type OptionChain struct {
	Options OptionList `json:"options"`
}

type OptionList struct {
	Option List[Option] `json:"option"`
}

// Mid is the bid/ask midpoint. ok is false without a two-sided market.
func (o Option) Mid() (mid float64, ok bool) {
	if o.Bid <= 0 || o.Ask <= 0 || o.Ask < o.Bid {
		return 0, false
	}
	return (o.Bid + o.Ask) / 2, true
}

// Calls filters a chain down to its call options.
func Calls(chain []Option) []Option {
	var calls []Option
	for _, o := range chain {
		if o.OptionType == "call" {
			calls = append(calls, o)
		}
	}
	return calls
}

// Closes extracts the closing prices of bars in order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
