// Package ingest adapts external event feeds into the engine's
// processing queue. Each source subscribes to a transport, decodes
// incoming payloads into events and hands them to the sink.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"careops-alert-engine/internal/rule"
)

// Sink accepts decoded events for processing.
type Sink interface {
	Submit(event *rule.Event) error
}

// Source is a running event feed.
type Source interface {
	Start() error
	Stop()
}

// ParseEvent decodes a JSON payload into an event. The payload must be
// a JSON object; its scalar fields become evaluation facts. Two keys
// are reserved: "category" names the trigger type and "timestamp"
// carries an RFC 3339 occurrence time. When the payload carries no
// category, the final topic segment is used instead.
func ParseEvent(topic string, payload []byte) (*rule.Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	event := &rule.Event{
		Facts: make(map[string]rule.Value, len(raw)),
	}

	for key, val := range raw {
		switch key {
		case "category":
			if s, ok := val.(string); ok {
				event.Category = rule.TriggerType(s)
			}
		case "timestamp":
			if s, ok := val.(string); ok {
				if ts, err := time.Parse(time.RFC3339, s); err == nil {
					event.Timestamp = ts
				}
			}
		default:
			if v, ok := rule.FromAny(val); ok {
				event.Facts[key] = v
			}
		}
	}

	if event.Category == "" {
		event.Category = categoryFromTopic(topic)
	}
	if event.Category == "" {
		return nil, fmt.Errorf("event has no category")
	}
	if !rule.ValidTriggerTypes[event.Category] {
		return nil, fmt.Errorf("unknown event category: %s", event.Category)
	}

	return event, nil
}

// categoryFromTopic extracts the last segment of an MQTT topic or NATS
// subject, e.g. "careops/events/sla_breach" or
// "careops.events.sla_breach" both yield "sla_breach".
func categoryFromTopic(topic string) rule.TriggerType {
	if topic == "" {
		return ""
	}
	sep := "/"
	if !strings.Contains(topic, "/") {
		sep = "."
	}
	parts := strings.Split(topic, sep)
	return rule.TriggerType(parts[len(parts)-1])
}
