package risk

import (
	"encoding/json"
	"time"
)

// Base scores per operation type. Unlisted operations score baseUnknown.
const (
	baseTrade    = 30
	baseTransfer = 25
	baseSwap     = 20
	basePost     = 10
	baseRead     = 5
	baseUnknown  = 15
)

// Additive factor weights.
const (
	amountHighBump  = 20 // amount > 1000
	amountMedBump   = 10 // 100 < amount <= 1000
	offHoursBump    = 15 // before 06:00 or after 22:00
	frequencyBump   = 30 // more than 10 activities in the trailing hour
	frequencyWindow = 10
)

// Level boundaries on the score.
const (
	criticalAt = 80
	veryHighAt = 60
	highAt     = 40
	mediumAt   = 20
)

// Input is everything the assessor reads. RecentActivity is the agent's
// operation count over the trailing hour, supplied by the caller from the
// shared activity history.
type Input struct {
	OperationType  string
	Payload        map[string]interface{}
	RecentActivity int
	Now            time.Time
}

// Assess scores an operation. Pure: equal inputs give equal outputs.
func Assess(in Input) *Assessment {
	score := 0.0
	var factors []string

	switch in.OperationType {
	case "trade":
		score += baseTrade
	case "transfer":
		score += baseTransfer
	case "swap":
		score += baseSwap
	case "post":
		score += basePost
	case "read":
		score += baseRead
	default:
		score += baseUnknown
	}

	// Amount buckets are mutually exclusive; the larger bucket wins.
	amount := amountOf(in.Payload)
	if amount > 1000 {
		score += amountHighBump
		factors = append(factors, "High transaction amount")
	} else if amount > 100 {
		score += amountMedBump
		factors = append(factors, "Medium transaction amount")
	}

	hour := in.Now.Hour()
	if hour < 6 || hour > 22 {
		score += offHoursBump
		factors = append(factors, "Off-hours operation")
	}

	if in.RecentActivity > frequencyWindow {
		score += frequencyBump
		factors = append(factors, "High frequency activity")
	}

	var recommendations []string
	if score > 50 {
		recommendations = append(recommendations, "Consider additional verification")
	}
	if score > 70 {
		recommendations = append(recommendations, "Manual review recommended")
	}
	if score > 90 {
		recommendations = append(recommendations, "Block operation and investigate")
	}

	return &Assessment{
		Level:           levelFor(score),
		Score:           score,
		Factors:         factors,
		Recommendations: recommendations,
	}
}

func levelFor(score float64) Level {
	switch {
	case score >= criticalAt:
		return LevelCritical
	case score >= veryHighAt:
		return LevelVeryHigh
	case score >= highAt:
		return LevelHigh
	case score >= mediumAt:
		return LevelMedium
	default:
		return LevelLow
	}
}

// amountOf reads the payload amount, tolerating the numeric types JSON
// decoding and hand-built maps produce. Missing or non-numeric amounts
// count as zero.
func amountOf(payload map[string]interface{}) float64 {
	switch v := payload["amount"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}
