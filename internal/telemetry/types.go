// Soldier telemetry and reference data as served by the portal backend
package telemetry

import "time"

// RiskLevel is the server-assigned severity of a vitals reading.
type RiskLevel string

// Risk levels.
const (
	RiskNormal   RiskLevel = "NORMAL"
	RiskWarning  RiskLevel = "WARNING"
	RiskCritical RiskLevel = "CRITICAL"
)

// SoldierReading is one vitals sample pushed by a soldier's LoRa node.
// Readings are values; a newer reading supersedes, never mutates, an older one.
type SoldierReading struct {
	SoldierID    string    `json:"soldierId"`
	Timestamp    time.Time `json:"timestamp"`
	HeartRate    float64   `json:"heartRate"`
	Temperature  float64   `json:"temperature"`
	SpO2         float64   `json:"spo2"`
	BatteryLevel float64   `json:"batteryLevel"`
	RiskLevel    RiskLevel `json:"riskLevel,omitempty"`
}

// Key identifies a reading for deduplication.
func (r SoldierReading) Key() ReadingKey {
	return ReadingKey{SoldierID: r.SoldierID, UnixNano: r.Timestamp.UnixNano()}
}

// ReadingKey is the (soldierId, timestamp) pair.
type ReadingKey struct {
	SoldierID string
	UnixNano  int64
}

// PersonnelRole is the combat designation of a registered soldier.
type PersonnelRole string

const (
	PersonnelSoldier PersonnelRole = "SOLDIER"
	PersonnelMedic   PersonnelRole = "MEDIC"
)

// SoldierProfile is static reference data used to decorate the detail view.
type SoldierProfile struct {
	SoldierID  string        `json:"soldierId"`
	Name       string        `json:"name"`
	Rank       string        `json:"rank"`
	Unit       string        `json:"unit"`
	BloodGroup string        `json:"bloodGroup"`
	Role       PersonnelRole `json:"role"`
}

// UnknownPersonnel is shown when a soldier has no registered profile.
const UnknownPersonnel = "Unknown Personnel"

// DisplayName returns the profile name or the placeholder.
func (p SoldierProfile) DisplayName() string {
	if p.Name == "" {
		return UnknownPersonnel
	}
	return p.Name
}

// Ranks lists the ranks accepted by the enrollment form, lowest first.
var Ranks = []string{
	"Private",
	"Corporal",
	"Sergeant",
	"Lieutenant",
	"Captain",
	"Major",
	"Colonel",
}

// ValidRank reports whether rank is one of Ranks.
func ValidRank(rank string) bool {
	for _, r := range Ranks {
		if r == rank {
			return true
		}
	}
	return false
}

// Commander is a commander account as listed by the admin endpoints.
type Commander struct {
	ID     string `json:"_id,omitempty"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Region string `json:"region,omitempty"`
}

// DefaultSector holds commanders without an assigned region.
const DefaultSector = "General Reserve"

// Sector is a named group of commanders.
type Sector struct {
	Name       string
	Commanders []Commander
}

// GroupSectors groups commanders by region, preserving first-seen order.
func GroupSectors(commanders []Commander) []Sector {
	idx := make(map[string]int)
	var out []Sector
	for _, c := range commanders {
		region := c.Region
		if region == "" {
			region = DefaultSector
		}
		i, ok := idx[region]
		if !ok {
			i = len(out)
			idx[region] = i
			out = append(out, Sector{Name: region})
		}
		out[i].Commanders = append(out[i].Commanders, c)
	}
	return out
}
