// Package export renders console data as spreadsheets.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"vitalsops/internal/telemetry"
)

const (
	vitalsSheet = "vitals"
	alertsSheet = "alerts"
	rosterSheet = "roster"
)

// BuildVitalsXLSX renders the latest readings, the critical subset and the
// roster into one workbook. Readings for unregistered soldiers are labelled
// with the unknown-personnel placeholder.
func BuildVitalsXLSX(rows []telemetry.SoldierReading, roster []telemetry.SoldierProfile, generatedAt time.Time) ([]byte, error) {
	profiles := make(map[string]telemetry.SoldierProfile, len(roster))
	for _, p := range roster {
		profiles[p.SoldierID] = p
	}

	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", vitalsSheet)
	if _, err := f.NewSheet(alertsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rosterSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(vitalsSheet, "A1", "Generated")
	_ = f.SetCellValue(vitalsSheet, "B1", generatedAt.UTC().Format(time.RFC3339))
	readingHeader := []any{"Soldier", "Name", "Rank", "Heart Rate (BPM)", "Body Temp (°C)", "SpO2 (%)", "Battery (%)", "Risk", "Timestamp"}
	_ = f.SetSheetRow(vitalsSheet, "A3", &readingHeader)
	for i, r := range rows {
		writeReading(f, vitalsSheet, i+4, r, profiles[r.SoldierID])
	}

	_ = f.SetSheetRow(alertsSheet, "A1", &readingHeader)
	for i, r := range telemetry.CriticalAlerts(rows) {
		writeReading(f, alertsSheet, i+2, r, profiles[r.SoldierID])
	}

	rosterHeader := []any{"Soldier", "Name", "Rank", "Unit", "Blood Group", "Role"}
	_ = f.SetSheetRow(rosterSheet, "A1", &rosterHeader)
	for i, p := range roster {
		values := []any{p.SoldierID, p.DisplayName(), p.Rank, p.Unit, p.BloodGroup, string(p.Role)}
		_ = f.SetSheetRow(rosterSheet, fmt.Sprintf("A%d", i+2), &values)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeReading(f *excelize.File, sheet string, row int, r telemetry.SoldierReading, p telemetry.SoldierProfile) {
	values := []any{
		r.SoldierID,
		p.DisplayName(),
		p.Rank,
		r.HeartRate,
		r.Temperature,
		r.SpO2,
		r.BatteryLevel,
		string(telemetry.Classify(r)),
		r.Timestamp.UTC().Format(time.RFC3339),
	}
	_ = f.SetSheetRow(sheet, fmt.Sprintf("A%d", row), &values)
}
