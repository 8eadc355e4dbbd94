package gamify

import "math"

// Tier is a named point band. A tier covers [MinPoints, next tier's MinPoints).
type Tier struct {
	Name      string
	MinPoints int
}

// Tiers lists rank tiers in ascending order.
var Tiers = []Tier{
	{"Bronze", 0},
	{"Silver", 500},
	{"Gold", 1000},
	{"Platinum", 2500},
	{"Diamond", 5000},
}

const (
	// LegendName is the aspirational next rank shown above Diamond.
	LegendName = "Legend"
	// legendBand is the width of the band Diamond progress is measured over.
	legendBand = 5000
)

// Rank is the classification of a point total.
type Rank struct {
	Rank            string  `json:"rank"`
	NextRank        string  `json:"next_rank"`
	ProgressPercent float64 `json:"progress_percent"`
}

// Classify maps a point total to its tier and progress toward the next one.
// Negative totals are treated as zero. Progress is clamped to [0, 100].
func Classify(points int) Rank {
	if points < 0 {
		points = 0
	}
	i := len(Tiers) - 1
	for i > 0 && points < Tiers[i].MinPoints {
		i--
	}
	cur := Tiers[i]
	var next string
	var width int
	if i+1 < len(Tiers) {
		next = Tiers[i+1].Name
		width = Tiers[i+1].MinPoints - cur.MinPoints
	} else {
		next = LegendName
		width = legendBand
	}
	p := float64(points-cur.MinPoints) / float64(width) * 100
	return Rank{Rank: cur.Name, NextRank: next, ProgressPercent: clamp(p, 0, 100)}
}

// RoundedProgress returns the progress as a whole percentage for display.
func (r Rank) RoundedProgress() int {
	return int(math.Round(r.ProgressPercent))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
