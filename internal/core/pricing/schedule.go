package pricing

import "math"

// checkpoints are fractions of the initial treasury published in a schedule.
var checkpoints = []float64{1.0, 0.8, 0.6, 0.4, 0.2, 0.1, 0.05, 0.01, 0.001, 0.0001}

// Checkpoint is one row of a price disclosure table.
type Checkpoint struct {
	TreasuryLevel int64   `json:"treasury_level"`
	Price         int64   `json:"price"`
	PercentSold   float64 `json:"percent_sold"`
}

// Schedule returns the price at standard supply checkpoints of the initial treasury.
func Schedule(p Params) []Checkpoint {
	initial := p.InitialTreasury
	if initial <= 0 {
		initial = p.Treasury
	}
	p.InitialTreasury = initial

	rows := make([]Checkpoint, 0, len(checkpoints))
	for _, frac := range checkpoints {
		level := int64(math.Round(float64(initial) * frac))
		sold := 0.0
		if initial > 0 {
			sold = (1 - float64(level)/float64(initial)) * 100
		}
		rows = append(rows, Checkpoint{
			TreasuryLevel: level,
			Price:         Price(p.At(level)),
			PercentSold:   sold,
		})
	}
	return rows
}
