// Package models defines the domain types shared across the gateway:
// integration configurations, event audit rows, execution logs, DLQ entries,
// scheduled deliveries and the error taxonomy.
package models

import "encoding/json"

// Payload is the arbitrary JSON tree carried by an event or request body.
// Values follow encoding/json conventions: map[string]any, []any, string,
// float64, bool, nil.
type Payload map[string]any

// Clone returns a deep copy of the payload via JSON round-trip.
// Returns an empty payload if marshalling fails (payloads originate from
// JSON, so in practice it cannot).
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Payload{}
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return Payload{}
	}
	return out
}

// JSON renders the payload as compact JSON. Returns "{}" on a nil payload.
func (p Payload) JSON() []byte {
	if p == nil {
		return []byte("{}")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return []byte("{}")
	}
	return raw
}

// ParsePayload decodes raw JSON into a Payload.
func ParsePayload(raw []byte) (Payload, error) {
	var p Payload
	if len(raw) == 0 {
		return Payload{}, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}
