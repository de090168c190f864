package archive

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"vitalsops/internal/telemetry"
)

// DefaultVitalsTable is the GreptimeDB table readings are written to.
const DefaultVitalsTable = "soldier_vitals"

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter writes readings to GreptimeDB via the ingester client.
type GreptimeWriter struct {
	client  greptimeClient
	table   string
	timeout time.Duration
	log     *slog.Logger
}

// NewGreptimeWriter connects to endpoint (host or host:port) and database.
func NewGreptimeWriter(endpoint, database string, log *slog.Logger) (*GreptimeWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port > 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GreptimeWriter{client: client, table: DefaultVitalsTable, timeout: 5 * time.Second, log: log}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, 0, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("greptime endpoint %q: invalid port", endpoint)
	}
	return host, port, nil
}

// Write inserts a single reading.
func (w *GreptimeWriter) Write(r telemetry.SoldierReading) error {
	return w.WriteBatch([]telemetry.SoldierReading{r})
}

// WriteBatch inserts multiple readings in one request.
func (w *GreptimeWriter) WriteBatch(rows []telemetry.SoldierReading) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("soldier_id", types.STRING)
	tbl.AddFieldColumn("heart_rate", types.FLOAT64)
	tbl.AddFieldColumn("temperature", types.FLOAT64)
	tbl.AddFieldColumn("spo2", types.FLOAT64)
	tbl.AddFieldColumn("battery_level", types.FLOAT64)
	tbl.AddFieldColumn("risk_level", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(
			r.SoldierID,
			r.HeartRate,
			r.Temperature,
			r.SpO2,
			r.BatteryLevel,
			string(telemetry.Classify(r)),
			r.Timestamp,
		); err != nil {
			return fmt.Errorf("greptime row %s: %w", r.SoldierID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tbl); err != nil {
		w.log.Warn("[GreptimeWriter] write failed", "rows", len(rows), "error", err)
		return err
	}
	w.log.Debug("[GreptimeWriter] wrote rows", "rows", len(rows))
	return nil
}
