// Package dashboard turns telemetry snapshots into display cards: formatted
// values plus a warning flag per reading. The embedded browser client renders
// these cards verbatim.
package dashboard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/config"
	"github.com/sweeney/sensor-dashboard/internal/reading"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

// Card is one rendered reading.
type Card struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Warning bool   `json:"warning"`
}

// Section is a titled group of cards. Failed sections carry a single status
// card and Error set.
type Section struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Cards []Card `json:"cards"`
	Error bool   `json:"error,omitempty"`
}

// Rules holds the highlight thresholds.
type Rules struct {
	TemperatureWarning float64
	UsageWarning       float64
	WarnOnStoppedFan   bool
}

// DefaultRules returns the stock thresholds: 60°C and 80% usage.
func DefaultRules() Rules {
	return Rules{TemperatureWarning: 60, UsageWarning: 80, WarnOnStoppedFan: true}
}

// RulesFromConfig copies the thresholds out of cfg.
func RulesFromConfig(cfg config.DashboardConfig) Rules {
	return Rules{
		TemperatureWarning: cfg.TemperatureWarning,
		UsageWarning:       cfg.UsageWarning,
		WarnOnStoppedFan:   cfg.WarnOnStoppedFan,
	}
}

var usageNames = []string{"disk used %", "ram used %", "cpu total load"}

// FormatValue renders v for display. Text passes through untouched; numbers
// pick a unit from the reading name.
func FormatValue(name string, v reading.Value) string {
	f, ok := v.Float()
	if !ok {
		return v.String()
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "temp"):
		return v.String() + "°C"
	case strings.Contains(lower, "volt"):
		return fmt.Sprintf("%.2f V", f)
	case strings.Contains(lower, "fan"):
		return v.String() + " RPM"
	}
	return v.String()
}

// ShouldHighlight reports whether the reading deserves a warning style.
func (r Rules) ShouldHighlight(name string, v reading.Value) bool {
	lower := strings.ToLower(name)
	f, isNumber := v.Float()

	if strings.Contains(lower, "temp") && isNumber && f > r.TemperatureWarning {
		return true
	}
	for _, usage := range usageNames {
		if strings.Contains(lower, usage) {
			pct, ok := leadingNumber(v.String())
			return ok && pct > r.UsageWarning
		}
	}
	if r.WarnOnStoppedFan && strings.Contains(lower, "fan") && isNumber && f == 0 {
		return true
	}
	return false
}

// Cards renders every reading in set, in set order.
func (r Rules) Cards(set *reading.Set) []Card {
	cards := make([]Card, 0, set.Len())
	for _, rd := range set.Readings() {
		cards = append(cards, Card{
			Name:    rd.Name,
			Value:   FormatValue(rd.Name, rd.Value),
			Warning: r.ShouldHighlight(rd.Name, rd.Value),
		})
	}
	return cards
}

// Section renders one successful section.
func (r Rules) Section(title string, set *reading.Set) Section {
	return Section{Type: sectionType(title), Title: title, Cards: r.Cards(set)}
}

// ErrorSection is shown in place of a section whose data could not be
// fetched.
func ErrorSection(kind string) Section {
	return Section{
		Type:  kind,
		Title: "Error - " + kind,
		Cards: []Card{{Name: "Status", Value: "Unable to fetch data", Warning: true}},
		Error: true,
	}
}

// Build renders a whole snapshot, one section per telemetry section.
func (r Rules) Build(snap telemetry.Snapshot) []Section {
	out := make([]Section, 0, len(snap.Sections))
	for _, s := range snap.Sections {
		if s.Err != nil {
			out = append(out, ErrorSection(string(s.Name)))
			continue
		}
		out = append(out, r.Section(s.Name.Title(), s.Readings))
	}
	return out
}

func sectionType(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), "-"))
}

var leadingNumberRe = regexp.MustCompile(`^\s*[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// leadingNumber parses the longest numeric prefix of s, so "85.00%" is 85
// and "12 GB" is 12.
func leadingNumber(s string) (float64, bool) {
	m := leadingNumberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
