package models

import (
	"encoding/json"
	"time"
)

// Reading is one decoded telemetry record from a sensor node.
//
// Temp/Hum hold the single-sensor values, or the cross-sensor average when the
// node reports two sensors (Temp1/Hum1, Temp2/Hum2). Fields the gateway does not
// know about are kept in Extra and written back unchanged.
type Reading struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"-"`

	Temp  *float64 `json:"temp,omitempty"`
	Hum   *float64 `json:"hum,omitempty"`
	Temp1 *float64 `json:"temp1,omitempty"`
	Hum1  *float64 `json:"hum1,omitempty"`
	Temp2 *float64 `json:"temp2,omitempty"`
	Hum2  *float64 `json:"hum2,omitempty"`

	Relay  bool  `json:"relay"`
	Manual bool  `json:"manual"`
	Ack    *bool `json:"ack,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// knownReadingFields are decoded into struct fields; everything else lands in Extra.
var knownReadingFields = map[string]struct{}{
	"id": {}, "timestamp": {}, "receivedAt": {},
	"temp": {}, "hum": {}, "temp1": {}, "hum1": {}, "temp2": {}, "hum2": {},
	"relay": {}, "manual": {}, "ack": {},
}

// readingAlias drops the methods of Reading so the default codec can be reused.
type readingAlias Reading

// IsAck reports whether the node flagged this reading as a command acknowledgment.
func (r Reading) IsAck() bool {
	return r.Ack != nil && *r.Ack
}

// DualSensor reports whether the payload carries both sensor pairs.
func (r Reading) DualSensor() bool {
	return r.Temp1 != nil && r.Temp2 != nil
}

// HasClimate reports whether the primary (or averaged) temperature and humidity are present.
func (r Reading) HasClimate() bool {
	return r.Temp != nil && r.Hum != nil
}

// Clone returns a copy that shares no mutable state with r.
func (r Reading) Clone() Reading {
	out := r
	out.Temp = cloneFloat(r.Temp)
	out.Hum = cloneFloat(r.Hum)
	out.Temp1 = cloneFloat(r.Temp1)
	out.Hum1 = cloneFloat(r.Hum1)
	out.Temp2 = cloneFloat(r.Temp2)
	out.Hum2 = cloneFloat(r.Hum2)
	if r.Ack != nil {
		ack := *r.Ack
		out.Ack = &ack
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// UnmarshalJSON decodes the known fields and keeps the rest opaque.
// The device's own "timestamp" is ignored; ingestion assigns the canonical one.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var a struct {
		readingAlias
		Timestamp  json.RawMessage `json:"timestamp"`
		ReceivedAt json.RawMessage `json:"receivedAt"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Reading(a.readingAlias)
	r.Timestamp = time.Time{}
	r.ReceivedAt = time.Time{}

	for k, v := range raw {
		if _, ok := knownReadingFields[k]; ok {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[k] = v
	}
	return nil
}

// MarshalJSON writes the reading with receivedAt as epoch milliseconds and
// timestamp as ISO-8601 UTC, merging any pass-through fields.
func (r Reading) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(struct {
		readingAlias
		Timestamp  string `json:"timestamp,omitempty"`
		ReceivedAt int64  `json:"receivedAt,omitempty"`
	}{
		readingAlias: readingAlias(r),
		Timestamp:    FormatInstant(r.Timestamp),
		ReceivedAt:   unixMilli(r.ReceivedAt),
	})
	if err != nil || len(r.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(r.Extra)+12)
	for k, v := range r.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// FormatInstant renders t the way browsers print Date.toISOString (UTC, millisecond precision).
func FormatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(InstantLayout)
}

// InstantLayout is the ISO-8601 layout used on the wire.
const InstantLayout = "2006-01-02T15:04:05.000Z07:00"

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
