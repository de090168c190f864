package telemetry

import "strings"

// ParseRiskLevel normalises a raw risk string. Missing or unrecognised values
// fall back to RiskNormal.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskWarning:
		return RiskWarning
	case RiskCritical:
		return RiskCritical
	default:
		return RiskNormal
	}
}

// Classify returns the risk level carried by the reading, defaulting to NORMAL.
func Classify(r SoldierReading) RiskLevel {
	return ParseRiskLevel(string(r.RiskLevel))
}

// CriticalAlerts selects the CRITICAL readings from rows, in row order.
// It is cheap enough to be recomputed on every table change.
func CriticalAlerts(rows []SoldierReading) []SoldierReading {
	var out []SoldierReading
	for _, r := range rows {
		if Classify(r) == RiskCritical {
			out = append(out, r)
		}
	}
	return out
}
