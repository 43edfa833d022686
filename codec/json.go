package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec. Journal headers are always
// written with it so that any reader can find out the record codec.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec for records of newly created journals.
var Default Codec = GoJSON{}
