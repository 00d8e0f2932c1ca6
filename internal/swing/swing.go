package swing

import (
	"market-structure-bot/internal/fractal"
)

// Direction of a swing.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Swing is a directional price move between two confirmed fractals. Swings
// are replaced, never mutated in place, when the dominant selection changes.
type Swing struct {
	Start      fractal.Fractal `json:"start"`
	End        fractal.Fractal `json:"end"`
	Direction  Direction       `json:"direction"`
	Magnitude  float64         `json:"magnitude"`
	Bars       int             `json:"bars"`
	IsDominant bool            `json:"is_dominant"`
}

// High returns the swing's upper extreme price.
func (s *Swing) High() float64 {
	if s.Direction == Up {
		return s.End.Price
	}
	return s.Start.Price
}

// Low returns the swing's lower extreme price.
func (s *Swing) Low() float64 {
	if s.Direction == Up {
		return s.Start.Price
	}
	return s.End.Price
}

// Clone returns an independent copy. Snapshots hand clones to readers
// outside the engine loop so in-place dominance and hit-flag updates never
// reach them.
func (s *Swing) Clone() *Swing {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Same reports whether two swings connect the same fractals in the same
// direction. Used to detect whether a recompute actually changed dominance.
func (s *Swing) Same(o *Swing) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Direction == o.Direction &&
		s.Start.Index == o.Start.Index && s.Start.Type == o.Start.Type &&
		s.End.Index == o.End.Index && s.End.Type == o.End.Type
}
