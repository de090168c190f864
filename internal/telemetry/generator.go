package telemetry

import (
	"math"
	"math/rand"
	"time"
)

// Vitals holds the running physiological state of a simulated soldier.
type Vitals struct {
	SoldierID   string
	HeartRate   float64
	Temperature float64
	SpO2        float64
	Battery     float64
}

// Generator simulates the LoRa belt nodes of a squad. It stands in for the
// backend when the console runs without a portal, so it also assigns the
// risk level the server would normally compute.
type Generator struct {
	rnd *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

// NewVitals returns a resting baseline for soldierID.
func NewVitals(soldierID string) *Vitals {
	return &Vitals{SoldierID: soldierID, HeartRate: 78, Temperature: 36.8, SpO2: 98, Battery: 100}
}

// Next advances v by one tick and returns the reading for it.
func (g *Generator) Next(v *Vitals) SoldierReading {
	v.HeartRate = clamp(v.HeartRate+g.walk(4), 40, 200)
	v.Temperature = clamp(v.Temperature+g.walk(0.15), 34, 42)
	v.SpO2 = clamp(v.SpO2+g.walk(0.8), 70, 100)

	v.Battery -= 0.1 + g.rnd.Float64()*0.1
	if v.Battery < 0 {
		v.Battery = 0
	}

	r := SoldierReading{
		SoldierID:    v.SoldierID,
		Timestamp:    g.now().UTC(),
		HeartRate:    math.Round(v.HeartRate),
		Temperature:  math.Round(v.Temperature*10) / 10,
		SpO2:         math.Round(v.SpO2),
		BatteryLevel: math.Round(v.Battery),
	}
	r.RiskLevel = simulatedRisk(r)
	return r
}

// walk returns a pseudo-random step in [-amp, amp].
func (g *Generator) walk(amp float64) float64 {
	return (g.rnd.Float64()*2 - 1) * amp
}

// simulatedRisk mirrors the backend thresholds.
func simulatedRisk(r SoldierReading) RiskLevel {
	switch {
	case r.HeartRate > 150 || r.HeartRate < 45 || r.SpO2 < 88 || r.Temperature > 39.5 || r.Temperature < 35:
		return RiskCritical
	case r.HeartRate > 120 || r.SpO2 < 94 || r.Temperature > 38.3:
		return RiskWarning
	default:
		return RiskNormal
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
