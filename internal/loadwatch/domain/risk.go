package domain

import "fmt"

type RiskBand string

const (
	RiskLow      RiskBand = "LOW"
	RiskModerate RiskBand = "MODERATE"
	RiskHigh     RiskBand = "HIGH"
	// RiskUnknown is used when there is not enough history to compute a ratio.
	RiskUnknown RiskBand = "UNKNOWN"
)

// Glyph is the traffic-light marker shown next to a ratio.
func (b RiskBand) Glyph() string {
	switch b {
	case RiskLow:
		return "🟢"
	case RiskModerate:
		return "🟡"
	case RiskHigh:
		return "🔴"
	default:
		return "⚪"
	}
}

// Thresholds are the upper bounds (inclusive) of the LOW and MODERATE bands.
type Thresholds struct {
	Moderate float64
	High     float64
}

var DefaultThresholds = Thresholds{Moderate: 1.3, High: 1.5}

func (t Thresholds) Validate() error {
	if t.Moderate <= 0 || t.High <= 0 {
		return fmt.Errorf("risk thresholds must be positive, got %.2f/%.2f", t.Moderate, t.High)
	}
	if t.Moderate >= t.High {
		return fmt.Errorf("moderate threshold %.2f must be below high threshold %.2f", t.Moderate, t.High)
	}
	return nil
}

// Band classifies a ratio. Boundary values fall into the lower band.
func (t Thresholds) Band(acwr float64) RiskBand {
	switch {
	case acwr <= t.Moderate:
		return RiskLow
	case acwr <= t.High:
		return RiskModerate
	default:
		return RiskHigh
	}
}
