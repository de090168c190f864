package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"vitalsops/internal/telemetry"
)

func TestBuildVitalsXLSX(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := []telemetry.SoldierReading{
		{SoldierID: "FC-001", Timestamp: ts, HeartRate: 171, RiskLevel: telemetry.RiskCritical},
		{SoldierID: "FC-099", Timestamp: ts, HeartRate: 80, RiskLevel: "bogus"},
	}
	roster := []telemetry.SoldierProfile{
		{SoldierID: "FC-001", Name: "J. Miller", Rank: "Sergeant", Unit: "Alpha", BloodGroup: "O+", Role: telemetry.PersonnelMedic},
	}

	data, err := BuildVitalsXLSX(rows, roster, ts)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	name, err := f.GetCellValue(vitalsSheet, "B4")
	require.NoError(t, err)
	require.Equal(t, "J. Miller", name)

	unknown, err := f.GetCellValue(vitalsSheet, "B5")
	require.NoError(t, err)
	require.Equal(t, telemetry.UnknownPersonnel, unknown)

	risk, err := f.GetCellValue(vitalsSheet, "H5")
	require.NoError(t, err)
	require.Equal(t, "NORMAL", risk)

	alerts, err := f.GetRows(alertsSheet)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, "FC-001", alerts[1][0])

	role, err := f.GetCellValue(rosterSheet, "F2")
	require.NoError(t, err)
	require.Equal(t, "MEDIC", role)
}
