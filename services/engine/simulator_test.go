package engine

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func mustAnnotate(t *testing.T, bars []PriceBar, swingLength int) []AnnotatedBar {
	t.Helper()
	out, err := Annotate(bars, swingLength)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	return out
}

func runSim(t *testing.T, series []AnnotatedBar, balance, risk float64, log *EventLog) *SimulationState {
	t.Helper()
	sim := NewSimulator(SimConfig{
		StartingBalance: decimal.NewFromFloat(balance),
		RiskFraction:    decimal.NewFromFloat(risk),
	}, log)
	state, err := sim.Run(series)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return state
}

func TestSimulatorParamValidation(t *testing.T) {
	series := mustAnnotate(t, spikeSeries(), 5)
	cases := []struct {
		name          string
		balance, risk float64
	}{
		{"zero balance", 0, 0.05},
		{"negative balance", -100, 0.05},
		{"zero risk", 10000, 0},
		{"negative risk", 10000, -0.1},
		{"risk above one", 10000, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := NewSimulator(SimConfig{
				StartingBalance: decimal.NewFromFloat(tc.balance),
				RiskFraction:    decimal.NewFromFloat(tc.risk),
			}, nil)
			if _, err := sim.Run(series); !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

// The reference scenario: entry fires at bar 6 where close (15) first
// exceeds fib50 (14.5), exit at bar 8 where high (20) reaches the swing
// high (20). With 5% of a 10000 balance, shares = 500/15.
func TestSimulatorSpikeScenario(t *testing.T) {
	series := mustAnnotate(t, spikeSeries(), 5)
	log := &EventLog{}
	state := runSim(t, series, 10000, 0.05, log)

	if len(state.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(state.Trades))
	}
	tr := state.Trades[0]
	if !tr.EntryDate.Equal(day(6)) || !tr.ExitDate.Equal(day(8)) {
		t.Fatalf("trade span %s..%s, want day 6..8", tr.EntryDate, tr.ExitDate)
	}
	if got := tr.EntryPrice.InexactFloat64(); got != 15 {
		t.Errorf("entryPrice = %v, want 15", got)
	}
	if got := tr.ExitPrice.InexactFloat64(); got != 20 {
		t.Errorf("exitPrice = %v, want 20", got)
	}

	wantShares := 500.0 / 15.0
	if got := tr.Shares.InexactFloat64(); math.Abs(got-wantShares) > 1e-6 {
		t.Errorf("shares = %v, want %v", got, wantShares)
	}
	wantPnl := (20.0 - 15.0) * wantShares
	if got := tr.Pnl.InexactFloat64(); math.Abs(got-wantPnl) > 1e-6 {
		t.Errorf("pnl = %v, want %v", got, wantPnl)
	}
	wantPct := wantPnl / (15.0 * wantShares) * 100
	if got := tr.PnlPercent.InexactFloat64(); math.Abs(got-wantPct) > 1e-6 {
		t.Errorf("pnlPercent = %v, want %v", got, wantPct)
	}

	var entries, exits int
	for _, e := range log.Events {
		switch e.Type {
		case EventEntrySignal:
			entries++
		case EventExitSignal:
			exits++
		}
	}
	if entries != 1 || exits != 1 {
		t.Errorf("event log has %d entries / %d exits, want 1/1", entries, exits)
	}
}

func TestSimulatorConservation(t *testing.T) {
	series := mustAnnotate(t, spikeSeries(), 5)
	state := runSim(t, series, 10000, 0.05, nil)

	want := state.StartingBalance.Add(state.TotalPnl)
	if !state.EndingBalance().Equal(want) {
		t.Fatalf("endingBalance %s != startingBalance + totalPnl %s",
			state.EndingBalance(), want)
	}
	if len(state.Trades) > 0 {
		last := state.Trades[len(state.Trades)-1]
		if !last.AccountBalance.Equal(state.AccountBalance) {
			t.Fatalf("last trade balance %s != final balance %s",
				last.AccountBalance, state.AccountBalance)
		}
	}
}

// A strictly decreasing series never crosses above fib50 from below.
func TestSimulatorNoSignal(t *testing.T) {
	bars := make([]PriceBar, 11)
	for i := range bars {
		px := float64(100 - i)
		bars[i] = bar(i, px, px, px)
	}
	series := mustAnnotate(t, bars, 5)
	state := runSim(t, series, 10000, 0.05, nil)

	if !state.NoSignal() {
		t.Fatalf("expected empty trade log, got %d trades", len(state.Trades))
	}
	if !state.AccountBalance.Equal(state.StartingBalance) {
		t.Fatalf("balance changed without trades: %s", state.AccountBalance)
	}
	if !state.TotalPnl.IsZero() || !state.TotalPnlPercent.IsZero() {
		t.Fatal("totals must stay zero without trades")
	}
}

// Two entry crossings resolve against the same later exit bar. The second
// entry must be sized from the balance as it stood at its own entry bar,
// before the first trade's profit lands.
func TestSimulatorOverlappingEntries(t *testing.T) {
	bars := flatSeries(13, 9)
	bars[2] = bar(2, 30, 9, 9)
	bars[3] = bar(3, 21, 9, 21)
	bars[5] = bar(5, 21, 9, 21)
	bars[7] = bar(7, 30, 9, 9)

	series := mustAnnotate(t, bars, 5)
	state := runSim(t, series, 10000, 0.10, nil)

	if len(state.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(state.Trades))
	}
	first, second := state.Trades[0], state.Trades[1]
	if !first.EntryDate.Equal(day(3)) || !second.EntryDate.Equal(day(5)) {
		t.Fatalf("entry dates %s, %s, want day 3 and day 5", first.EntryDate, second.EntryDate)
	}
	if !first.ExitDate.Equal(day(7)) || !second.ExitDate.Equal(day(7)) {
		t.Fatalf("both trades must exit on day 7, got %s, %s", first.ExitDate, second.ExitDate)
	}
	if got := first.ExitPrice.InexactFloat64(); got != 30 {
		t.Errorf("exitPrice = %v, want 30", got)
	}

	// 10% of 10000 at 21 for both: the first exit had not resolved yet.
	wantShares := 1000.0 / 21.0
	if got := first.Shares.InexactFloat64(); math.Abs(got-wantShares) > 1e-6 {
		t.Errorf("first shares = %v, want %v", got, wantShares)
	}
	if !second.Shares.Equal(first.Shares) {
		t.Errorf("second entry sized from post-exit balance: %s vs %s",
			second.Shares, first.Shares)
	}

	want := state.StartingBalance.Add(state.TotalPnl)
	if !state.EndingBalance().Equal(want) {
		t.Fatalf("conservation broken: %s != %s", state.EndingBalance(), want)
	}
}

// An entry whose exit condition never fires before the series ends is
// dropped without a trade record.
func TestSimulatorAbandonedPosition(t *testing.T) {
	bars := spikeSeries()
	// A high of 25 on bar 9 sits inside later windows but bar 9 itself is
	// dropped (no full window), so nothing ever touches the swing high.
	bars[9] = bar(9, 25, 9, 9)

	series := mustAnnotate(t, bars, 5)
	log := &EventLog{}
	state := runSim(t, series, 10000, 0.05, log)

	if !state.NoSignal() {
		t.Fatalf("expected no closed trades, got %d", len(state.Trades))
	}
	if !state.AccountBalance.Equal(state.StartingBalance) {
		t.Fatalf("abandoned position must not move the balance: %s", state.AccountBalance)
	}

	var abandoned int
	for _, e := range log.Events {
		if e.Type == EventPositionAbandoned {
			abandoned++
		}
	}
	if abandoned != 1 {
		t.Fatalf("expected 1 abandoned-position event, got %d", abandoned)
	}
}
