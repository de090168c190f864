package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vitalsops/internal/telemetry"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	tileStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

func riskStyle(level telemetry.RiskLevel) lipgloss.Style {
	switch level {
	case telemetry.RiskCritical:
		return errorStyle
	case telemetry.RiskWarning:
		return warnStyle
	default:
		return okStyle
	}
}

func riskBadge(r telemetry.SoldierReading) string {
	level := telemetry.Classify(r)
	return riskStyle(level).Render(string(level))
}

// alertLine renders one critical banner entry.
func alertLine(r telemetry.SoldierReading) string {
	return bannerStyle.Render("> " + r.SoldierID + " :: BIOMETRIC THRESHOLD EXCEEDED")
}

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// sparkline renders the last width values scaled between their min and max.
func sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	var b strings.Builder
	for _, v := range values {
		i := 0
		if hi > lo {
			i = int((v - lo) / (hi - lo) * float64(len(sparkTicks)-1))
		}
		b.WriteRune(sparkTicks[i])
	}
	return b.String()
}

func divider(width int) string {
	if width <= 0 {
		width = 40
	}
	return dimStyle.Render(strings.Repeat("─", width))
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
