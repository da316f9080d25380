package kv

import "encoding/json"

// SchemaVersion is the current persisted-schema version. Every value
// written through this package is wrapped in an envelope carrying it.
const SchemaVersion = 1

// Envelope wraps a persisted payload with its schema version so that
// format changes never crash silently on load.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Migration upgrades a payload written at an older schema version to the
// current one. It returns the upgraded payload and true, or false when the
// old version cannot be upgraded and the value should be discarded.
type Migration func(oldVersion int, payload json.RawMessage) (json.RawMessage, bool)

// Marshal wraps payload in a current-version envelope.
func Marshal(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{SchemaVersion: SchemaVersion, Payload: raw})
}

// Unmarshal decodes an enveloped value into out. The boolean result is
// false when the value was discarded: malformed data, or a schema-version
// mismatch that no migration could bridge. Discarding is silent by design;
// a stale or foreign value in the store must never fail a load.
func Unmarshal(data []byte, out interface{}, migrate Migration) (bool, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, nil
	}
	payload := env.Payload
	if env.SchemaVersion != SchemaVersion {
		if migrate == nil {
			return false, nil
		}
		upgraded, ok := migrate(env.SchemaVersion, env.Payload)
		if !ok {
			return false, nil
		}
		payload = upgraded
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, nil
	}
	return true, nil
}
