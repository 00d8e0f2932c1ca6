// Command replay runs the market structure engine over a CSV bar series as
// fast as possible and prints a session summary. It is the offline companion
// to the main server: same engine, no API surface.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"market-structure-bot/internal/engine"
	"market-structure-bot/internal/fractal"
	"market-structure-bot/internal/performance"
	"market-structure-bot/internal/series"
	"market-structure-bot/internal/signal"
	"market-structure-bot/internal/swing"

	"github.com/rs/zerolog"
)

func main() {
	csvPath := flag.String("csv", "", "OHLCV csv file to replay (required)")
	period := flag.Int("period", 5, "fractal confirmation period")
	lookback := flag.Int("lookback", 100, "swing lookback window in candles")
	minSwing := flag.Float64("min-swing", 0, "minimum dominant swing magnitude")
	riskReward := flag.Float64("rr", 2.0, "take-profit multiple of risk")
	verbose := flag.Bool("v", false, "log per-bar events")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay -csv <file> [-period N] [-lookback N] [-min-swing X] [-rr X]")
		os.Exit(2)
	}

	bars, err := series.LoadCSV(*csvPath)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *csvPath).Msg("failed to load csv")
	}

	session, err := engine.NewSession(engine.Config{
		Fractal: fractal.Config{Period: *period},
		Swing: swing.TrackerConfig{
			LookbackCandles: *lookback,
			MinMagnitude:    *minSwing,
		},
		Signal:      signal.Config{RiskReward: *riskReward},
		Performance: performance.Config{},
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid engine parameters")
	}

	start := time.Now()
	var rejected int
	for i, bar := range bars {
		r, err := session.ProcessBar(bar)
		if err != nil {
			rejected++
			logger.Warn().Err(err).Int("index", i).Msg("bar rejected")
			continue
		}
		if *verbose && r.DominantChanged {
			logger.Info().Int("bar", r.Index).Interface("dominant", r.Dominant).Msg("dominant swing changed")
		}
		if r.Enhanced != nil {
			logger.Info().
				Int("bar", r.Index).
				Str("side", string(r.Enhanced.Side)).
				Float64("entry", r.Enhanced.EntryPrice).
				Float64("score", r.Enhanced.Score).
				Str("quality", string(r.Enhanced.Quality)).
				Msg("signal")
		}
	}
	elapsed := time.Since(start)

	snap := session.Snapshot()
	stats := session.Stats()

	fmt.Printf("replayed %d bars in %s (%d rejected)\n", snap.Bars, elapsed.Round(time.Millisecond), rejected)
	fmt.Printf("fractals: %d  dominant swings: %d  abc patterns: %d\n",
		snap.Totals.Fractals, snap.Totals.Swings, snap.Totals.Patterns)
	fmt.Printf("signals: %d baseline / %d enhanced  bias: %s\n",
		snap.Totals.Signals, snap.Totals.EnhancedSignals, snap.Bias)
	if stats.Total > 0 {
		fmt.Printf("outcomes: %d target / %d stop / %d timeout / %d open  win rate: %.1f%%\n",
			stats.TargetHit, stats.StopHit, stats.Timeout, stats.Open, stats.WinRate*100)
	}
	if snap.Dominant != nil {
		fmt.Printf("final dominant: %s %.4f -> %.4f (magnitude %.4f)\n",
			snap.Dominant.Direction, snap.Dominant.Start.Price, snap.Dominant.End.Price, snap.Dominant.Magnitude)
		for _, lvl := range snap.FibLevels {
			marker := " "
			if lvl.Hit {
				marker = "*"
			}
			fmt.Printf("  fib %.3f = %.4f %s\n", lvl.Ratio, lvl.Price, marker)
		}
	}
}
