// Package sensors turns the text printed by lm-sensors' `sensors` command
// into a reading.Set.
//
// Parsing is a single pass over the lines with one piece of state, the
// adapter context: the chip a block of sensor lines belongs to. Every line
// is offered to every matcher; a line may produce zero or more readings and
// lines nobody recognises are dropped. Parse never fails.
package sensors

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// label is the text before the first colon: "temp1", "Core 0",
// "Package id 0", "+3.3V".
const label = `^\s*([^\s:(][^:]*?)\s*:\s*`

var (
	adapterRe = regexp.MustCompile(label + `(Adapter|ISA adapter|Virtual device)\b`)
	// The degree sign shows up correctly encoded, double-encoded as "Â°",
	// or as U+FFFD when a Latin-1 byte was decoded as UTF-8.
	temperatureRe = regexp.MustCompile(label + `([+-]?\d+(?:\.\d+)?)\s*(?:°|Â°|\x{FFFD})C`)
	// mV is listed first so a millivolt line never reads as volts.
	voltageRe = regexp.MustCompile(label + `([+-]?\d+(?:\.\d+)?)\s*(mV|V)\b`)
	fanRe     = regexp.MustCompile(label + `(\d+)\s*RPM\b`)
)

// Parse extracts temperature, voltage and fan readings from sensors output.
//
// Temperatures are namespaced by the active adapter ("<adapter> - <label>");
// voltages (normalised to volts) and fan speeds use the bare label. When a
// name repeats, the later line wins.
func Parse(text string) *reading.Set {
	p := parser{set: reading.NewSet()}
	for _, line := range strings.Split(text, "\n") {
		// Latin-1 bytes from sensors.conf labels become U+FFFD so every
		// reading name is valid UTF-8.
		p.line(strings.ToValidUTF8(strings.TrimRight(line, "\r"), "\uFFFD"))
	}
	return p.set
}

type parser struct {
	adapter string
	prev    string
	set     *reading.Set
}

// matcher inspects one line and returns the reading it describes, if any.
type matcher func(p *parser, line string) (reading.Reading, bool)

var matchers = []matcher{
	matchTemperature,
	matchVolts,
	matchMillivolts,
	matchFan,
}

func (p *parser) line(line string) {
	p.matchAdapter(line)
	for _, m := range matchers {
		if r, ok := m(p, line); ok {
			p.set.Put(r.Name, r.Value)
		}
	}
	p.prev = line
}

// matchAdapter updates the adapter context. sensors prints the chip name on
// its own line followed by "Adapter: <bus>"; in that case the chip name is
// the context. Any other "<label>: ISA adapter"-style line uses its label.
func (p *parser) matchAdapter(line string) {
	m := adapterRe.FindStringSubmatch(line)
	isAdapterLine := m != nil
	name := ""
	if m != nil {
		name = m[1]
	}
	if lbl, ok := lineLabel(line); ok && lbl == "Adapter" {
		isAdapterLine = true
		name = lbl
	}
	if !isAdapterLine {
		return
	}
	if name == "Adapter" {
		if chip := strings.TrimSpace(p.prev); chip != "" && !strings.Contains(chip, ":") {
			name = chip
		}
	}
	p.adapter = name
}

func matchTemperature(p *parser, line string) (reading.Reading, bool) {
	m := temperatureRe.FindStringSubmatch(line)
	if m == nil {
		return reading.Reading{}, false
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return reading.Reading{}, false
	}
	name := m[1]
	if p.adapter != "" {
		name = p.adapter + " - " + name
	}
	return reading.Reading{Name: name, Value: reading.Number(v)}, true
}

func matchVolts(_ *parser, line string) (reading.Reading, bool) {
	return matchVoltage(line, "V", 1)
}

func matchMillivolts(_ *parser, line string) (reading.Reading, bool) {
	return matchVoltage(line, "mV", 1000)
}

func matchVoltage(line, unit string, divisor float64) (reading.Reading, bool) {
	m := voltageRe.FindStringSubmatch(line)
	if m == nil || m[3] != unit {
		return reading.Reading{}, false
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return reading.Reading{}, false
	}
	return reading.Reading{Name: m[1], Value: reading.Number(v / divisor)}, true
}

func matchFan(_ *parser, line string) (reading.Reading, bool) {
	m := fanRe.FindStringSubmatch(line)
	if m == nil {
		return reading.Reading{}, false
	}
	rpm, err := strconv.Atoi(m[2])
	if err != nil {
		return reading.Reading{}, false
	}
	return reading.Reading{Name: m[1], Value: reading.Number(float64(rpm))}, true
}

// lineLabel returns the trimmed text before the first colon.
func lineLabel(line string) (string, bool) {
	before, _, found := strings.Cut(line, ":")
	if !found {
		return "", false
	}
	lbl := strings.TrimSpace(before)
	return lbl, lbl != ""
}
