package performance

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"market-structure-bot/internal/series"
	"market-structure-bot/internal/signal"

	"github.com/rs/zerolog"
)

func buySignal() *signal.EnhancedSignal {
	return &signal.EnhancedSignal{
		ID:         "buy-1",
		Side:       signal.Buy,
		EntryPrice: 100,
		StopLoss:   95,
		TakeProfit: 110,
	}
}

func sellSignal() *signal.EnhancedSignal {
	return &signal.EnhancedSignal{
		ID:         "sell-1",
		Side:       signal.Sell,
		EntryPrice: 100,
		StopLoss:   105,
		TakeProfit: 90,
	}
}

func obar(high, low float64) series.Bar {
	mid := (high + low) / 2
	return series.Bar{
		Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Open: mid, High: high, Low: low, Close: mid, Volume: 100,
	}
}

func TestTargetHit(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())

	if resolved := tr.OnBar(obar(105, 99)); len(resolved) != 0 {
		t.Fatalf("bar inside the bracket resolved a signal: %+v", resolved)
	}

	resolved := tr.OnBar(obar(111, 104))
	if len(resolved) != 1 || resolved[0].Outcome != OutcomeTargetHit {
		t.Fatalf("expected target hit, got %+v", resolved)
	}
	if resolved[0].BarsOpen != 2 {
		t.Errorf("bars open = %d, want 2", resolved[0].BarsOpen)
	}
	if resolved[0].ResolvedAt == nil {
		t.Error("resolved signal must carry a resolution time")
	}
}

func TestStopHit(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(sellSignal())

	resolved := tr.OnBar(obar(106, 101))
	if len(resolved) != 1 || resolved[0].Outcome != OutcomeStopHit {
		t.Fatalf("expected stop hit, got %+v", resolved)
	}
}

func TestStopCheckedBeforeTargetOnSameBar(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())

	// The bar spans both the stop and the target; the conservative reading
	// books the loss.
	resolved := tr.OnBar(obar(111, 94))
	if len(resolved) != 1 || resolved[0].Outcome != OutcomeStopHit {
		t.Fatalf("expected stop hit on an ambiguous bar, got %+v", resolved)
	}
}

func TestTimeout(t *testing.T) {
	tr := NewTracker(Config{TimeoutBars: 3}, zerolog.Nop())
	tr.Record(buySignal())

	for i := 0; i < 2; i++ {
		if resolved := tr.OnBar(obar(102, 99)); len(resolved) != 0 {
			t.Fatalf("resolved early at bar %d: %+v", i, resolved)
		}
	}
	resolved := tr.OnBar(obar(102, 99))
	if len(resolved) != 1 || resolved[0].Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout on bar 3, got %+v", resolved)
	}
}

func TestResolvedSignalNotUpdatedAgain(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())
	tr.OnBar(obar(111, 104))

	if resolved := tr.OnBar(obar(120, 80)); len(resolved) != 0 {
		t.Errorf("resolved signal re-resolved: %+v", resolved)
	}
	if got := tr.Signals()[0].BarsOpen; got != 1 {
		t.Errorf("bars open advanced after resolution: %d", got)
	}
}

func TestExcursionTracking(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())

	tr.OnBar(obar(104, 98))
	tr.OnBar(obar(103, 96))

	ts := tr.Signals()[0]
	if math.Abs(ts.MaxFavorable-4) > 1e-9 {
		t.Errorf("max favorable = %v, want 4", ts.MaxFavorable)
	}
	if math.Abs(ts.MaxAdverse-4) > 1e-9 {
		t.Errorf("max adverse = %v, want 4", ts.MaxAdverse)
	}
}

func TestSellExcursionDirections(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(sellSignal())

	tr.OnBar(obar(102, 97))

	ts := tr.Signals()[0]
	if math.Abs(ts.MaxFavorable-3) > 1e-9 {
		t.Errorf("max favorable = %v, want 3 (move below entry)", ts.MaxFavorable)
	}
	if math.Abs(ts.MaxAdverse-2) > 1e-9 {
		t.Errorf("max adverse = %v, want 2 (move above entry)", ts.MaxAdverse)
	}
}

func TestStats(t *testing.T) {
	tr := NewTracker(Config{TimeoutBars: 1}, zerolog.Nop())

	winner := buySignal()
	loser := buySignal()
	loser.ID = "buy-2"
	tr.Record(winner)
	tr.Record(loser)
	tr.OnBar(obar(111, 99)) // winner reaches target, loser times out at 1 bar

	stats := tr.Stats()
	if stats.Total != 2 || stats.Open != 0 {
		t.Errorf("totals = %+v", stats)
	}
	if stats.TargetHit != 2 {
		// Both signals share the bracket, so both hit the target before the
		// timeout check.
		t.Errorf("target hits = %d, want 2", stats.TargetHit)
	}
	if stats.WinRate != 1.0 {
		t.Errorf("win rate = %v, want 1.0", stats.WinRate)
	}
}

func TestStatsMixedOutcomes(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())
	tr.Record(sellSignal())

	tr.OnBar(obar(111, 104)) // buy hits target, sell hits stop

	stats := tr.Stats()
	if stats.TargetHit != 1 || stats.StopHit != 1 || stats.Open != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if math.Abs(stats.WinRate-0.5) > 1e-9 {
		t.Errorf("win rate = %v, want 0.5", stats.WinRate)
	}
}

func TestOpenSignalOmitsResolutionTime(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())
	tr.OnBar(obar(102, 99))

	open := tr.Signals()[0]
	if open.ResolvedAt != nil {
		t.Fatalf("open signal resolved at %v", open.ResolvedAt)
	}
	data, err := json.Marshal(open)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "resolved_at") {
		t.Errorf("open signal serialized a resolution time: %s", data)
	}

	resolved := tr.OnBar(obar(111, 104))
	if len(resolved) != 1 || resolved[0].ResolvedAt == nil {
		t.Fatalf("expected resolution with timestamp, got %+v", resolved)
	}
}

func TestResetClearsSignals(t *testing.T) {
	tr := NewTracker(Config{}, zerolog.Nop())
	tr.Record(buySignal())
	tr.Reset()

	if len(tr.Signals()) != 0 {
		t.Error("Reset must clear tracked signals")
	}
	if stats := tr.Stats(); stats.Total != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
}
