package calibrate

import (
	"sort"

	"github.com/bcdannyboy/jdpide/tradier"
)

func sortQuotes(quotes []Quote) {
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Strike < quotes[j].Strike })
}

// QuotesFromChain keeps the calls of a chain that have a two-sided market and
// prices them at the mid.
func QuotesFromChain(chain []tradier.Option) []Quote {
	var quotes []Quote
	for _, o := range tradier.Calls(chain) {
		mid, ok := o.Mid()
		if !ok {
			continue
		}
		quotes = append(quotes, Quote{Strike: o.Strike, Price: mid})
	}
	sortQuotes(quotes)
	return quotes
}
