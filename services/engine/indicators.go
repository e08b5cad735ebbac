package engine

import "github.com/shopspring/decimal"

// Annotate computes the rolling swing high/low and the 38.2/50/61.8%
// retracement levels for a validated daily series and returns the bars
// whose centered window fits inside the series. The window at index i
// spans [i-w/2, i+(w-1)/2], the extra bar of an even window falling on
// the past side; bars closer than that to either edge have no
// swing values and are dropped, so the returned series is the one the
// simulator must walk; adjacent-bar comparisons happen on post-drop
// indexes.
//
// Annotate is a pure function: it never modifies bars and two calls with
// the same input produce identical output.
func Annotate(bars []PriceBar, swingLength int) ([]AnnotatedBar, error) {
	if err := validateSeries(bars); err != nil {
		return nil, err
	}
	if swingLength < 1 {
		return nil, validationf("swing length must be at least 1, got %d", swingLength)
	}
	if swingLength >= len(bars) {
		return nil, validationf("swing length %d leaves no bar with a full centered window in a %d-bar series", swingLength, len(bars))
	}

	highs := make([]decimal.Decimal, len(bars))
	lows := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}
	swingHighs := slidingMax(highs, swingLength)
	swingLows := slidingMin(lows, swingLength)

	left := swingLength / 2
	out := make([]AnnotatedBar, 0, len(swingHighs))
	for k, sh := range swingHighs {
		sl := swingLows[k]
		span := sh.Sub(sl)
		out = append(out, AnnotatedBar{
			PriceBar:  bars[k+left],
			SwingHigh: sh,
			SwingLow:  sl,
			Fib38:     sh.Sub(span.Mul(fib382)),
			Fib50:     sh.Sub(span.Mul(fib500)),
			Fib61:     sh.Sub(span.Mul(fib618)),
		})
	}
	return out, nil
}

func validateSeries(bars []PriceBar) error {
	if len(bars) == 0 {
		return validationf("price series is empty")
	}
	for i, b := range bars {
		if !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return validationf("bar %d (%s): high/low/close must all be positive", i, b.Date.Format("2006-01-02"))
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return validationf("bar %d (%s): series must be strictly ascending by date", i, b.Date.Format("2006-01-02"))
		}
	}
	return nil
}
