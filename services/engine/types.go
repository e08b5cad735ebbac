package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one row of a daily price series. The series handed to
// Annotate must be sorted ascending by Date with no duplicate dates, and
// every price field must be positive.
type PriceBar struct {
	Date  time.Time
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// AnnotatedBar extends a PriceBar with the rolling swing extremes and the
// Fibonacci retracement levels interpolated between them. Bars whose
// centered window does not fit inside the series never become
// AnnotatedBars; Annotate drops them before simulation.
type AnnotatedBar struct {
	PriceBar
	SwingHigh decimal.Decimal
	SwingLow  decimal.Decimal
	Fib38     decimal.Decimal
	Fib50     decimal.Decimal
	Fib61     decimal.Decimal
}

// Trade is a closed position. Immutable once appended to the trade log.
// TotalPnl, TotalPnlPercent and AccountBalance are the running values at
// the time the trade closed.
type Trade struct {
	EntryDate       time.Time
	EntryPrice      decimal.Decimal
	ExitDate        time.Time
	ExitPrice       decimal.Decimal
	Shares          decimal.Decimal
	Pnl             decimal.Decimal
	PnlPercent      decimal.Decimal
	TotalPnl        decimal.Decimal
	TotalPnlPercent decimal.Decimal
	AccountBalance  decimal.Decimal
}

// SimulationState is the result of one simulation run. It is created at
// the start of a run and returned at the end; runs never share state, so
// callers may execute independent runs in parallel.
type SimulationState struct {
	StartingBalance decimal.Decimal
	AccountBalance  decimal.Decimal
	TotalPnl        decimal.Decimal
	TotalPnlPercent decimal.Decimal
	Trades          []Trade
}

// EndingBalance equals StartingBalance + TotalPnl by construction, since
// every closed trade updates the balance additively.
func (s *SimulationState) EndingBalance() decimal.Decimal { return s.AccountBalance }

// NoSignal reports whether the run closed zero trades. An empty trade log
// is a legitimate outcome, distinct from a validation failure.
func (s *SimulationState) NoSignal() bool { return len(s.Trades) == 0 }

// Retracement fractions, measured down from the swing high.
var (
	fib382 = decimal.NewFromFloat(0.382)
	fib500 = decimal.NewFromFloat(0.5)
	fib618 = decimal.NewFromFloat(0.618)

	one        = decimal.NewFromInt(1)
	oneHundred = decimal.NewFromInt(100)
)
