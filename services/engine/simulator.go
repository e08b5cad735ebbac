package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimConfig holds the parameters of one simulation run.
type SimConfig struct {
	// StartingBalance is the initial account balance. Must be positive.
	StartingBalance decimal.Decimal
	// RiskFraction is the fraction of the current balance committed to
	// each new position's notional size. Must be in (0, 1].
	RiskFraction decimal.Decimal
}

// Simulator walks an annotated, post-drop series once and turns level
// crossings into a trade log. One Simulator per run.
type Simulator struct {
	cfg SimConfig
	log *EventLog
}

func NewSimulator(cfg SimConfig, log *EventLog) *Simulator { return &Simulator{cfg: cfg, log: log} }

type openPosition struct {
	entryDate  time.Time
	entryPrice decimal.Decimal
	shares     decimal.Decimal
}

// Run executes the walk-forward pass over series.
//
// A position opens at bar i when close[i] rises above fib50[i] with
// close[i-1] still at or below fib50[i-1]. It closes at the first later
// bar whose high reaches that bar's swing high, at the swing-high price.
// Exits are resolved before entries on every bar, so a position can never
// close on its own entry bar. Entry evaluation is independent of open
// positions: several may be open at once, each sized from the account
// balance as of its own entry bar. Open positions reserve no capital
// from one another. Positions still open when the series ends produce no
// trade record.
func (s *Simulator) Run(series []AnnotatedBar) (*SimulationState, error) {
	if !s.cfg.StartingBalance.IsPositive() {
		return nil, validationf("starting balance must be positive, got %s", s.cfg.StartingBalance)
	}
	if !s.cfg.RiskFraction.IsPositive() || s.cfg.RiskFraction.GreaterThan(one) {
		return nil, validationf("risk fraction must be in (0, 1], got %s", s.cfg.RiskFraction)
	}

	state := &SimulationState{
		StartingBalance: s.cfg.StartingBalance,
		AccountBalance:  s.cfg.StartingBalance,
	}

	var open []openPosition
	for i, bar := range series {
		if len(open) > 0 && bar.High.GreaterThanOrEqual(bar.SwingHigh) {
			for _, pos := range open {
				s.closePosition(state, pos, bar)
			}
			open = open[:0]
		}

		if i == 0 {
			continue
		}
		prev := series[i-1]
		if bar.Close.GreaterThan(bar.Fib50) && prev.Close.LessThanOrEqual(prev.Fib50) {
			size := s.cfg.RiskFraction.Mul(state.AccountBalance)
			pos := openPosition{
				entryDate:  bar.Date,
				entryPrice: bar.Close,
				shares:     size.Div(bar.Close),
			}
			open = append(open, pos)
			s.record(EventEntrySignal, bar.Date, map[string]string{
				"price":  pos.entryPrice.String(),
				"fib50":  bar.Fib50.String(),
				"shares": pos.shares.String(),
			})
		}
	}

	// No forced liquidation: unexited positions are simply dropped.
	for _, pos := range open {
		s.record(EventPositionAbandoned, pos.entryDate, map[string]string{
			"price": pos.entryPrice.String(),
		})
	}
	return state, nil
}

func (s *Simulator) closePosition(state *SimulationState, pos openPosition, bar AnnotatedBar) {
	exitPrice := bar.SwingHigh
	pnl := exitPrice.Sub(pos.entryPrice).Mul(pos.shares)
	pnlPercent := pnl.Div(pos.entryPrice.Mul(pos.shares)).Mul(oneHundred)

	state.AccountBalance = state.AccountBalance.Add(pnl)
	state.TotalPnl = state.TotalPnl.Add(pnl)
	state.TotalPnlPercent = state.TotalPnlPercent.Add(pnlPercent)
	state.Trades = append(state.Trades, Trade{
		EntryDate:       pos.entryDate,
		EntryPrice:      pos.entryPrice,
		ExitDate:        bar.Date,
		ExitPrice:       exitPrice,
		Shares:          pos.shares,
		Pnl:             pnl,
		PnlPercent:      pnlPercent,
		TotalPnl:        state.TotalPnl,
		TotalPnlPercent: state.TotalPnlPercent,
		AccountBalance:  state.AccountBalance,
	})

	s.record(EventExitSignal, bar.Date, map[string]string{
		"price": exitPrice.String(),
		"pnl":   pnl.String(),
	})
}

func (s *Simulator) record(t EventType, date time.Time, details map[string]string) {
	if s.log == nil {
		return
	}
	s.log.Append(Event{Date: date, Type: t, Details: details})
}
