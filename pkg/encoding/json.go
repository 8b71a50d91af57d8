package encoding

import (
	json "github.com/goccy/go-json"
)

// JSONName is the wire identifier of the JSON codec
const JSONName = "json"

// JSON encodes with goccy/go-json. Byte slices travel as base64 strings.
type JSON struct{}

func (JSON) Name() string { return JSONName }

func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
