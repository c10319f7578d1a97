package store

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// marshalJSON encodes v as compact JSON TEXT with HTML escaping disabled, so
// payloads stay byte-identical to what callers stored.
func marshalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", errors.Wrap(err, "marshal")
	}
	// Encoder adds a trailing newline.
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func unmarshalJSON(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return errors.Wrap(err, "unmarshal")
	}
	return nil
}
