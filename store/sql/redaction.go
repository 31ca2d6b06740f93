package sqlstore

import (
	"bytes"
	"encoding/json"

	"github.com/goliatone/go-payhooks/core"
)

// RedactPayload strips secrets from a JSON webhook body before it is stored.
// Bodies that are not JSON objects are kept as received.
func RedactPayload(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return append([]byte(nil), payload...)
	}
	var decoded map[string]any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err != nil {
		return append([]byte(nil), payload...)
	}
	encoded, err := json.Marshal(core.RedactSensitiveMap(decoded))
	if err != nil {
		return append([]byte(nil), payload...)
	}
	return encoded
}
