// Package publisher exports telemetry snapshots to MQTT: one retained topic
// per reading plus a combined JSON state topic per host.
package publisher

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

// Message is a single MQTT publish request.
type Message struct {
	Topic    string
	Payload  string
	Retained bool
}

// Publisher is the minimal interface the rest of the codebase uses to send
// MQTT messages. The real MQTT client and FakePublisher both implement it.
type Publisher interface {
	Publish(msg Message) error
	Close() error
}

// PublishConfig groups the MQTT routing parameters.
type PublishConfig struct {
	Prefix   string
	Host     string
	Retained bool
}

// OnlineState is the LWT / online-announcement payload.
type OnlineState struct {
	Online    bool   `json:"online"`
	Timestamp string `json:"timestamp"`
}

// PublishAll publishes every reading of every healthy section under
// <prefix>/<host>/<section>/<slug>, then the combined JSON state topic.
// Failed sections only appear in the state message. It returns the first
// publish error encountered.
func PublishAll(snap telemetry.Snapshot, cfg PublishConfig, pub Publisher) error {
	for _, sec := range snap.Sections {
		if sec.Err != nil {
			continue
		}
		for _, r := range sec.Readings.Readings() {
			msg := Message{
				Topic:    ReadingTopic(cfg.Prefix, cfg.Host, sec.Name, r.Name),
				Payload:  r.Value.String(),
				Retained: cfg.Retained,
			}
			if err := pub.Publish(msg); err != nil {
				return fmt.Errorf("publishing %s: %w", msg.Topic, err)
			}
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	return pub.Publish(Message{
		Topic:    StateTopic(cfg.Prefix, cfg.Host),
		Payload:  string(payload),
		Retained: cfg.Retained,
	})
}

// FormatOnline returns the JSON payload announcing the exporter is up.
func FormatOnline() string {
	return formatOnlineState(true)
}

// FormatOffline returns the JSON payload for the offline announcement.
func FormatOffline() string {
	return formatOnlineState(false)
}

func formatOnlineState(online bool) string {
	payload, _ := json.Marshal(OnlineState{
		Online:    online,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return string(payload)
}

// StateTopic returns the MQTT topic used for the combined state message.
func StateTopic(prefix, host string) string {
	return fmt.Sprintf("%s/%s/state", prefix, host)
}

// StatusTopic returns the topic carrying the online/offline announcement and
// the broker-held last will.
func StatusTopic(prefix, host string) string {
	return fmt.Sprintf("%s/%s/status", prefix, host)
}

// ReadingTopic returns the topic for one reading.
func ReadingTopic(prefix, host string, section telemetry.SectionName, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", prefix, host, section, Slug(name))
}

// Slug lowercases name and collapses every run of characters outside
// [a-z0-9] into a single underscore. "%" becomes "pct" so "RAM Used" and
// "RAM Used %" stay distinct. A name with nothing left after that, such as
// "°" or "Ω", becomes "reading_" plus a hash of the name so the topic never
// ends in a bare slash.
func Slug(name string) string {
	lowered := strings.ReplaceAll(strings.ToLower(name), "%", " pct")
	var b strings.Builder
	pending := false
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		h := fnv.New32a()
		h.Write([]byte(name)) //nolint:errcheck
		return fmt.Sprintf("reading_%08x", h.Sum32())
	}
	return b.String()
}
