package series

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSV column layout: timestamp,open,high,low,close,volume. The timestamp is
// either unix seconds/milliseconds or RFC3339. A header row is skipped when
// the first field does not parse as a timestamp.

// LoadCSV reads an OHLCV series from path, validating each bar and enforcing
// strictly increasing timestamps.
func LoadCSV(path string) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read bar file: %w", err)
	}

	bars := make([]Bar, 0, len(records))
	var last time.Time
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: %w: expected 6 columns, got %d", i+1, ErrMissingData, len(rec))
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("row %d: invalid timestamp %q: %w", i+1, rec[0], err)
		}

		bar := Bar{Time: ts}
		for j, dst := range []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", i+1, j+2, ErrMissingData)
			}
			*dst = v
		}

		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if !last.IsZero() && !bar.Time.After(last) {
			return nil, fmt.Errorf("row %d: %w", i+1, ErrOutOfOrder)
		}
		last = bar.Time

		bars = append(bars, bar)
	}

	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 { // milliseconds
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
