package zarr

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Marshal encodes v as canonical JSON: object keys sorted at every level,
// two-space indentation, no HTML escaping and a trailing newline. Numbers
// keep the textual form produced by encoding/json (shortest round-trip
// floats, integers without exponent).
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}

	// Round-trip through a generic value so struct fields are sorted too.
	generic, err := decodeGeneric(raw)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(generic); err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a document into v. Numbers decoded into interface
// values are kept as json.Number so 64-bit integers survive.
func Unmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "decoding document")
	}
	return nil
}

func decodeGeneric(raw []byte) (interface{}, error) {
	var generic interface{}
	if err := Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return generic, nil
}

// Float returns f as a JSON value. NaN and the infinities, which JSON
// cannot represent, become the strings "NaN", "Infinity" and "-Infinity".
func Float(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

// ParseFloat is the inverse of Float for values decoded by Unmarshal.
func ParseFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case json.Number:
		f, err := x.Float64()
		return f, errors.Wrapf(err, "parsing %q", x)
	case string:
		switch x {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, errors.Errorf("not a float value: %v", v)
}
