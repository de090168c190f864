package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"vitalsops/internal/telemetry"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorGray   = "\x1b[90m"
)

// StdoutWriter prints one line per reading, colorized by risk level when
// the output is a terminal and as JSON otherwise.
type StdoutWriter struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
}

// NewStdoutWriter creates a StdoutWriter for os.Stdout. jsonLines forces JSON
// lines even on a terminal.
func NewStdoutWriter(jsonLines bool) *StdoutWriter {
	return &StdoutWriter{
		out:      os.Stdout,
		colorize: !jsonLines && term.IsTerminal(int(os.Stdout.Fd())),
	}
}

func riskColor(level telemetry.RiskLevel) string {
	switch level {
	case telemetry.RiskCritical:
		return colorRed
	case telemetry.RiskWarning:
		return colorYellow
	default:
		return colorGreen
	}
}

// Write prints r.
func (w *StdoutWriter) Write(r telemetry.SoldierReading) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.colorize {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w.out, string(data))
		return err
	}
	level := telemetry.Classify(r)
	_, err := fmt.Fprintf(w.out, "%s%s%s %-8s %s%-8s%s HR %3.0f  TEMP %4.1f  SPO2 %3.0f%%  BATT %3.0f%%\n",
		colorGray, r.Timestamp.Local().Format(time.TimeOnly), colorReset,
		r.SoldierID,
		riskColor(level), level, colorReset,
		r.HeartRate, r.Temperature, r.SpO2, r.BatteryLevel,
	)
	return err
}
