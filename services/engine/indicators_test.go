package engine

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(n int, high, low, close float64) PriceBar {
	return PriceBar{
		Date:  day(n),
		High:  decimal.NewFromFloat(high),
		Low:   decimal.NewFromFloat(low),
		Close: decimal.NewFromFloat(close),
	}
}

// flatSeries returns n bars with high=low=close=px.
func flatSeries(n int, px float64) []PriceBar {
	bars := make([]PriceBar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, bar(i, px, px, px))
	}
	return bars
}

// spikeSeries is the 11-bar reference scenario: constant at 9 except a
// close spike to 15 at bar 6 and a high of 20 at bar 8.
func spikeSeries() []PriceBar {
	bars := flatSeries(11, 9)
	bars[6] = bar(6, 15, 9, 15)
	bars[8] = bar(8, 20, 9, 9)
	return bars
}

func TestAnnotateCenteredWindowOdd(t *testing.T) {
	out, err := Annotate(spikeSeries(), 5)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	// Bars 0,1,9,10 have no full window; 2..8 survive.
	if len(out) != 7 {
		t.Fatalf("expected 7 annotated bars, got %d", len(out))
	}
	if !out[0].Date.Equal(day(2)) || !out[6].Date.Equal(day(8)) {
		t.Fatalf("post-drop range is %s..%s, want day 2..8", out[0].Date, out[6].Date)
	}

	wantHighs := []float64{9, 9, 15, 15, 20, 20, 20}
	for i, want := range wantHighs {
		if got := out[i].SwingHigh.InexactFloat64(); got != want {
			t.Errorf("swingHigh[%d] = %v, want %v", i, got, want)
		}
		if got := out[i].SwingLow.InexactFloat64(); got != 9 {
			t.Errorf("swingLow[%d] = %v, want 9", i, got)
		}
	}
	// fib50 = swingHigh - (swingHigh-swingLow)*0.5.
	wantFib50 := []float64{9, 9, 12, 12, 14.5, 14.5, 14.5}
	for i, want := range wantFib50 {
		if got := out[i].Fib50.InexactFloat64(); math.Abs(got-want) > 1e-9 {
			t.Errorf("fib50[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestAnnotateCenteredWindowEven(t *testing.T) {
	// Even window of 4: the window at i is [i-2, i+1], the extra bar on
	// the past side. On an ascending series the swing highs 4,5,6 must
	// label days 2,3,4.
	bars := make([]PriceBar, 6)
	for i := range bars {
		px := float64(i + 1)
		bars[i] = bar(i, px, px, px)
	}
	out, err := Annotate(bars, 4)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 annotated bars, got %d", len(out))
	}
	for k, want := range []float64{4, 5, 6} {
		if got := out[k].SwingHigh.InexactFloat64(); got != want {
			t.Errorf("swingHigh[%d] = %v, want %v", k, got, want)
		}
		if !out[k].Date.Equal(day(k + 2)) {
			t.Errorf("annotated[%d] centered on %s, want day %d", k, out[k].Date, k+2)
		}
	}
}

func TestAnnotateDefaultWindowAlignment(t *testing.T) {
	// Window of 10 on a 12-bar ascending series: three full windows,
	// labeled 5 bars in from the start. Swing highs 10,11,12 land on
	// days 5,6,7.
	bars := make([]PriceBar, 12)
	for i := range bars {
		px := float64(i + 1)
		bars[i] = bar(i, px, px, px)
	}
	out, err := Annotate(bars, 10)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 annotated bars, got %d", len(out))
	}
	for k, want := range []float64{10, 11, 12} {
		if got := out[k].SwingHigh.InexactFloat64(); got != want {
			t.Errorf("swingHigh[%d] = %v, want %v", k, got, want)
		}
		if !out[k].Date.Equal(day(k + 5)) {
			t.Errorf("annotated[%d] centered on %s, want day %d", k, out[k].Date, k+5)
		}
	}
}

func TestAnnotateFibMonotonic(t *testing.T) {
	bars := []PriceBar{
		bar(0, 12, 8, 10), bar(1, 15, 9, 14), bar(2, 11, 7, 8),
		bar(3, 18, 12, 17), bar(4, 16, 10, 11), bar(5, 20, 15, 19),
		bar(6, 14, 9, 10), bar(7, 22, 16, 21), bar(8, 19, 13, 15),
	}
	out, err := Annotate(bars, 5)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	for i, ab := range out {
		if ab.SwingHigh.LessThan(ab.SwingLow) {
			t.Fatalf("bar %d: swingHigh < swingLow", i)
		}
		if ab.Fib38.LessThan(ab.Fib50) || ab.Fib50.LessThan(ab.Fib61) {
			t.Errorf("bar %d: want fib38 >= fib50 >= fib61, got %s %s %s",
				i, ab.Fib38, ab.Fib50, ab.Fib61)
		}
	}
}

func TestAnnotateIdempotent(t *testing.T) {
	bars := spikeSeries()
	first, err := Annotate(bars, 5)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	second, err := Annotate(bars, 5)
	if err != nil {
		t.Fatalf("Annotate (second run): %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("runs disagree on length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if !a.Date.Equal(b.Date) ||
			!a.SwingHigh.Equal(b.SwingHigh) || !a.SwingLow.Equal(b.SwingLow) ||
			!a.Fib38.Equal(b.Fib38) || !a.Fib50.Equal(b.Fib50) || !a.Fib61.Equal(b.Fib61) {
			t.Fatalf("bar %d differs between runs", i)
		}
	}
}

func TestAnnotateValidation(t *testing.T) {
	cases := []struct {
		name        string
		bars        []PriceBar
		swingLength int
	}{
		{"empty series", nil, 5},
		{"single bar, window 1", flatSeries(1, 10), 1},
		{"single bar, wide window", flatSeries(1, 10), 5},
		{"window equals series length", flatSeries(10, 10), 10},
		{"window exceeds series length", flatSeries(10, 10), 11},
		{"zero swing length", flatSeries(10, 10), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Annotate(tc.bars, tc.swingLength)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsValidation(err) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestAnnotateRejectsBadBars(t *testing.T) {
	missing := flatSeries(10, 10)
	missing[4].Close = decimal.Zero
	if _, err := Annotate(missing, 3); !IsValidation(err) {
		t.Fatalf("zero close: expected ValidationError, got %v", err)
	}

	unsorted := flatSeries(10, 10)
	unsorted[3].Date = day(7)
	if _, err := Annotate(unsorted, 3); !IsValidation(err) {
		t.Fatalf("unsorted dates: expected ValidationError, got %v", err)
	}

	duplicate := flatSeries(10, 10)
	duplicate[5].Date = duplicate[4].Date
	if _, err := Annotate(duplicate, 3); !IsValidation(err) {
		t.Fatalf("duplicate dates: expected ValidationError, got %v", err)
	}
}
