package nut

import (
	"math"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// Names of the readings Derive adds on top of the raw upsd variables.
const (
	LoadWatts                = "ups.load.watts"
	BatteryRuntimeMinutes    = "battery.runtime.minutes"
	BatteryRuntimeHours      = "battery.runtime.hours"
	StatusDisplay            = "ups.status.display"
	OnBattery                = "ups.on_battery"
	LowBattery               = "ups.low_battery"
	InputVoltageDeviationPct = "input.voltage.deviation.pct"
)

// statusTokens maps NUT status tokens to human-readable labels.
var statusTokens = map[string]string{
	"OL":      "Online",
	"OB":      "On Battery",
	"LB":      "Low Battery",
	"HB":      "High Battery",
	"RB":      "Replace Battery",
	"CHRG":    "Charging",
	"DISCHRG": "Discharging",
	"BYPASS":  "Bypass",
	"CAL":     "Calibrating",
	"OFF":     "Offline",
	"OVER":    "Overloaded",
	"TRIM":    "Trimming",
	"BOOST":   "Boosting",
	"FSD":     "Forced Shutdown",
}

// Derive computes convenience readings from vars. A derived reading is
// omitted when any of its inputs is missing or unparseable, so a partial
// upsd answer never produces made-up zeros.
func Derive(vars map[string]string) *reading.Set {
	set := reading.NewSet()

	if load, ok := parseFloat(vars["ups.load"]); ok {
		if nominal, ok := parseFloat(vars["ups.realpower.nominal"]); ok {
			set.Put(LoadWatts, reading.Number(round2(load/100*nominal)))
		}
	}
	if runtime, ok := parseFloat(vars["battery.runtime"]); ok {
		set.Put(BatteryRuntimeMinutes, reading.Number(round2(runtime/60)))
		set.Put(BatteryRuntimeHours, reading.Number(round2(runtime/3600)))
	}
	if status := vars["ups.status"]; status != "" {
		set.Put(StatusDisplay, reading.Text(statusDisplay(status)))
		set.Put(OnBattery, reading.Text(strconv.FormatBool(hasStatusToken(status, "OB"))))
		set.Put(LowBattery, reading.Text(strconv.FormatBool(hasStatusToken(status, "LB"))))
	}
	if voltage, ok := parseFloat(vars["input.voltage"]); ok {
		if nominal, ok := parseFloat(vars["input.voltage.nominal"]); ok && nominal != 0 {
			set.Put(InputVoltageDeviationPct, reading.Number(round2((voltage-nominal)/nominal*100)))
		}
	}
	return set
}

func statusDisplay(status string) string {
	tokens := strings.Fields(status)
	decoded := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if name, ok := statusTokens[t]; ok {
			decoded = append(decoded, name)
		} else {
			decoded = append(decoded, t)
		}
	}
	return strings.Join(decoded, ", ")
}

// hasStatusToken reports whether the space-separated status string contains token.
func hasStatusToken(status, token string) bool {
	for _, t := range strings.Fields(status) {
		if t == token {
			return true
		}
	}
	return false
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
