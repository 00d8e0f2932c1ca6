package analysis

import (
	"market-structure-bot/internal/series"
)

// VolumeAnalyzer provides volume-based confirmation analysis.
type VolumeAnalyzer struct {
	avgPeriod int // period for the trailing average
}

// VolumeProfile represents volume analysis results for the newest bar.
type VolumeProfile struct {
	CurrentVolume  float64 `json:"current_volume"`
	AverageVolume  float64 `json:"average_volume"`
	VolumeRatio    float64 `json:"volume_ratio"`     // current / trailing average
	IsHighVolume   bool    `json:"is_high_volume"`   // ratio > 2x
	IsClimaxVolume bool    `json:"is_climax_volume"` // ratio > 3x
	VolumeType     string  `json:"volume_type"`      // "buying", "selling", "neutral"
}

// NewVolumeAnalyzer creates a volume analyzer. The period defaults to 20.
func NewVolumeAnalyzer(avgPeriod int) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20
	}
	return &VolumeAnalyzer{avgPeriod: avgPeriod}
}

// Analyze computes the volume profile of the last bar against the trailing
// average of the bars before it. Returns nil when no bars are available.
func (va *VolumeAnalyzer) Analyze(bars []series.Bar) *VolumeProfile {
	if len(bars) == 0 {
		return nil
	}

	current := bars[len(bars)-1]
	avg := va.TrailingAverage(bars)

	var ratio float64
	if avg > 0 {
		ratio = current.Volume / avg
	}

	return &VolumeProfile{
		CurrentVolume:  current.Volume,
		AverageVolume:  avg,
		VolumeRatio:    ratio,
		IsHighVolume:   ratio > 2.0,
		IsClimaxVolume: ratio > 3.0,
		VolumeType:     volumeType(current),
	}
}

// TrailingAverage averages volume over the configured period of bars before
// the newest bar. With only one bar there is no trailing window and the
// average is zero.
func (va *VolumeAnalyzer) TrailingAverage(bars []series.Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	prior := bars[:len(bars)-1]
	period := va.avgPeriod
	if len(prior) < period {
		period = len(prior)
	}

	sum := 0.0
	for i := len(prior) - period; i < len(prior); i++ {
		sum += prior[i].Volume
	}
	return sum / float64(period)
}

// IsSpike reports whether the newest bar's volume ratio meets the threshold.
func (va *VolumeAnalyzer) IsSpike(bars []series.Bar, threshold float64) bool {
	profile := va.Analyze(bars)
	if profile == nil {
		return false
	}
	return profile.VolumeRatio >= threshold
}

// volumeType identifies whether the bar's volume reads as buying or selling
// pressure from its body direction and wick proportions.
func volumeType(bar series.Bar) string {
	body := bar.Body()
	switch {
	case bar.IsBullish():
		if bar.UpperShadow() < body*0.2 {
			return "buying"
		}
	case bar.IsBearish():
		if bar.LowerShadow() < body*0.2 {
			return "selling"
		}
	}
	return "neutral"
}
