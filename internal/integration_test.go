// Package integration_test exercises the full pipeline:
//
//	FakeRunner + FakePoller → telemetry.Service → publisher.PublishAll → FakePublisher
//	                                            → dashboard.Rules.Build
//
// No real sensors binary, NUT server or MQTT broker is needed.
package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/sweeney/sensor-dashboard/internal/dashboard"
	"github.com/sweeney/sensor-dashboard/internal/nut"
	"github.com/sweeney/sensor-dashboard/internal/probe"
	"github.com/sweeney/sensor-dashboard/internal/publisher"
	"github.com/sweeney/sensor-dashboard/internal/runner"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

// sensorsOutput is `sensors` from a small home server with an Intel CPU and a
// Nuvoton super-I/O chip.
const sensorsOutput = `coretemp-isa-0000
Adapter: ISA adapter
Package id 0:  +52.0°C  (high = +80.0°C, crit = +100.0°C)
Core 0:        +49.0°C  (high = +80.0°C, crit = +100.0°C)
Core 1:        +51.0°C  (high = +80.0°C, crit = +100.0°C)

nct6798-isa-0290
Adapter: ISA adapter
in0:                   680.00 mV (min =  +0.00 V, max =  +1.74 V)
in1:                     1.01 V  (min =  +0.00 V, max =  +0.00 V)  ALARM
fan1:                   0 RPM  (min =    0 RPM)
fan2:                 812 RPM  (min =    0 RPM)
SYSTIN:                +33.0°C  (high =  +0.0°C, hyst =  +0.0°C)  sensor = thermistor
`

const dfOutput = `Filesystem      Size  Used Avail Use% Mounted on
/dev/sda2       916G  788G   82G  91% /
`

const topOutput = `top - 21:14:09 up 41 days,  6:02,  2 users,  load average: 0.41, 0.37, 0.33
%Cpu(s):  2.3 us,  0.8 sy,  0.0 ni, 96.7 id,  0.1 wa,  0.0 hi,  0.1 si,  0.0 st
`

var (
	sensorsCmd = runner.Command{Name: "sensors"}
	dfCmd      = runner.Command{Name: "df", Args: []string{"-hP", "/"}}
	topCmd     = runner.Command{Name: "top", Args: []string{"-bn1"}}
	pubCfg     = publisher.PublishConfig{Prefix: "sensors", Host: "nas", Retained: true}
)

// Two UPS polls across a mains failure.
var (
	upsOnline = []nut.Variable{
		{Name: "ups.status", Value: "OL"},
		{Name: "ups.load", Value: "8"},
		{Name: "ups.realpower.nominal", Value: "900"},
		{Name: "battery.charge", Value: "100"},
		{Name: "battery.runtime", Value: "4920"},
		{Name: "ups.model", Value: "CP1500EPFCLCD"},
	}
	upsOnBattery = []nut.Variable{
		{Name: "ups.status", Value: "OB DISCHRG"},
		{Name: "ups.load", Value: "8"},
		{Name: "ups.realpower.nominal", Value: "900"},
		{Name: "battery.charge", Value: "97"},
		{Name: "battery.runtime", Value: "3780"},
		{Name: "ups.model", Value: "CP1500EPFCLCD"},
	}
)

func newService(fp nut.Poller) *telemetry.Service {
	fr := &runner.FakeRunner{Outputs: map[string]string{
		sensorsCmd.String(): sensorsOutput,
		dfCmd.String():      dfOutput,
		topCmd.String():     topOutput,
	}}
	memory := func(context.Context) (uint64, uint64, error) { return 32 << 30, 8 << 30, nil }
	return telemetry.New(telemetry.Config{
		Runner:         fr,
		SensorsCommand: sensorsCmd,
		Metrics: probe.NewAggregator(
			&probe.Disk{Runner: fr, Command: dfCmd},
			&probe.Memory{Counters: memory},
			&probe.CPU{Runner: fr, Command: topCmd},
		),
		UPS:    fp,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func requireTopic(t *testing.T, fpub *publisher.FakePublisher, topic, wantPayload string) {
	t.Helper()
	msg, ok := fpub.Find(topic)
	if !ok {
		t.Errorf("topic %q not published", topic)
		return
	}
	if msg.Payload != wantPayload {
		t.Errorf("topic %q: payload = %q, want %q", topic, msg.Payload, wantPayload)
	}
}

func TestEndToEnd_PublishedTopics(t *testing.T) {
	svc := newService(&nut.FakePoller{Variables: upsOnline})
	fpub := &publisher.FakePublisher{}
	if err := publisher.PublishAll(svc.Snapshot(context.Background()), pubCfg, fpub); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}

	requireTopic(t, fpub, "sensors/nas/sensors/coretemp_isa_0000_package_id_0", "52")
	requireTopic(t, fpub, "sensors/nas/sensors/nct6798_isa_0290_systin", "33")
	requireTopic(t, fpub, "sensors/nas/sensors/in0", "0.68")
	requireTopic(t, fpub, "sensors/nas/sensors/in1", "1.01")
	requireTopic(t, fpub, "sensors/nas/sensors/fan2", "812")
	requireTopic(t, fpub, "sensors/nas/system-metrics/disk_used_pct", "91%")
	requireTopic(t, fpub, "sensors/nas/system-metrics/ram_used", "24.00 GB")
	requireTopic(t, fpub, "sensors/nas/system-metrics/cpu_total_load", "3.10%")
	requireTopic(t, fpub, "sensors/nas/ups/ups_load_watts", "72")
	requireTopic(t, fpub, "sensors/nas/ups/battery_runtime_minutes", "82")

	for _, m := range fpub.Messages {
		if !m.Retained {
			t.Errorf("topic %q should be retained", m.Topic)
		}
	}
}

func TestEndToEnd_StateTopicJSON(t *testing.T) {
	svc := newService(&nut.FakePoller{Variables: upsOnline})
	fpub := &publisher.FakePublisher{}
	if err := publisher.PublishAll(svc.Snapshot(context.Background()), pubCfg, fpub); err != nil {
		t.Fatalf("PublishAll: %v", err)
	}
	msg, ok := fpub.Find("sensors/nas/state")
	if !ok {
		t.Fatal("state topic not published")
	}
	var state struct {
		Sections []struct {
			Name     string         `json:"name"`
			Readings map[string]any `json:"readings"`
		} `json:"sections"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &state); err != nil {
		t.Fatalf("state JSON: %v", err)
	}
	if len(state.Sections) != 3 {
		t.Fatalf("sections = %d, want 3", len(state.Sections))
	}
	if state.Sections[2].Readings["ups.model"] != "CP1500EPFCLCD" {
		t.Errorf("ups.model = %v", state.Sections[2].Readings["ups.model"])
	}
}

func TestEndToEnd_Cards(t *testing.T) {
	svc := newService(nil)
	sections := dashboard.DefaultRules().Build(svc.Snapshot(context.Background()))
	if len(sections) != 2 {
		t.Fatalf("sections = %d, want 2 (no UPS)", len(sections))
	}

	cards := map[string]dashboard.Card{}
	for _, s := range sections {
		for _, c := range s.Cards {
			cards[c.Name] = c
		}
	}
	cases := []struct {
		name    string
		value   string
		warning bool
	}{
		{"coretemp-isa-0000 - Package id 0", "52°C", false},
		{"fan1", "0 RPM", true},
		{"fan2", "812 RPM", false},
		{"Disk Used %", "91%", true},
		{"RAM Used %", "75.00%", false},
		{"CPU Total Load", "3.10%", false},
	}
	for _, tc := range cases {
		c, ok := cards[tc.name]
		if !ok {
			t.Errorf("card %q missing", tc.name)
			continue
		}
		if c.Value != tc.value || c.Warning != tc.warning {
			t.Errorf("card %q = %+v, want value %q warning %v", tc.name, c, tc.value, tc.warning)
		}
	}
}

// TestPowerCutSequence steps a FakePoller across a mains failure and checks
// the derived UPS readings at each poll.
func TestPowerCutSequence(t *testing.T) {
	fp := &nut.FakePoller{Sequence: [][]nut.Variable{upsOnline, upsOnBattery}}
	svc := newService(fp)

	steps := []struct {
		name        string
		wantDisplay string
		wantOnBatt  string
		wantMinutes string
	}{
		{"mains", "Online", "false", "82"},
		{"on battery", "On Battery, Discharging", "true", "63"},
		{"still on battery", "On Battery, Discharging", "true", "63"},
	}
	for _, s := range steps {
		t.Run(s.name, func(t *testing.T) {
			fpub := &publisher.FakePublisher{}
			if err := publisher.PublishAll(svc.Snapshot(context.Background()), pubCfg, fpub); err != nil {
				t.Fatalf("PublishAll: %v", err)
			}
			requireTopic(t, fpub, "sensors/nas/ups/ups_status_display", s.wantDisplay)
			requireTopic(t, fpub, "sensors/nas/ups/ups_on_battery", s.wantOnBatt)
			requireTopic(t, fpub, "sensors/nas/ups/battery_runtime_minutes", s.wantMinutes)
		})
	}
	if fp.CallCount != 3 {
		t.Errorf("FakePoller.CallCount = %d, want 3", fp.CallCount)
	}
}
