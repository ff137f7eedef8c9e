package zarr

import (
	"encoding/binary"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// DType is a NumPy array-interface type description. A simple type is a
// string such as "<i4", "|S8" or "|O"; a structured type is a list of
// fields.
type DType struct {
	// Name is the type string of a simple type, empty for structured types.
	Name string

	// Fields are the members of a structured type.
	Fields []Field
}

// Field is one member of a structured dtype.
type Field struct {
	Name  string
	DType DType

	// Shape is the sub-array shape of the member, nil for scalars.
	Shape []uint64
}

// Simple returns the simple dtype named s.
func Simple(s string) DType {
	return DType{Name: s}
}

// Structured returns a structured dtype with the given fields.
func Structured(fields ...Field) DType {
	return DType{Fields: fields}
}

// IsZero reports whether the dtype is unset.
func (d DType) IsZero() bool {
	return d.Name == "" && len(d.Fields) == 0
}

// IsStructured reports whether d is a structured dtype.
func (d DType) IsStructured() bool {
	return len(d.Fields) > 0
}

// IsObject reports whether d is the object dtype "|O".
func (d DType) IsObject() bool {
	return d.Name == "|O"
}

// ByteOrder returns '<', '>' or '|' for simple types and '|' for
// structured ones.
func (d DType) ByteOrder() byte {
	if d.IsStructured() || d.Name == "" {
		return '|'
	}
	return d.Name[0]
}

// Order returns the binary byte order of multi-byte simple types. Types
// with '|' order are reported as little endian.
func (d DType) Order() binary.ByteOrder {
	if d.ByteOrder() == '>' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Kind returns the type character ('i', 'u', 'f', 'b', 'S', 'U', 'V', 'O'),
// or 'V' for structured types.
func (d DType) Kind() byte {
	if d.IsStructured() || len(d.Name) < 2 {
		return 'V'
	}
	return d.Name[1]
}

// ItemSize returns the size of one element in bytes. Object arrays have no
// fixed size and report 0.
func (d DType) ItemSize() int {
	if d.IsStructured() {
		size := 0
		for _, f := range d.Fields {
			n := f.DType.ItemSize()
			for _, s := range f.Shape {
				n *= int(s)
			}
			size += n
		}
		return size
	}
	if len(d.Name) < 3 {
		return 0
	}
	n, err := strconv.Atoi(d.Name[2:])
	if err != nil {
		return 0
	}
	if d.Kind() == 'U' {
		return 4 * n
	}
	return n
}

// Validate checks that d is a well formed dtype.
func (d DType) Validate() error {
	if d.IsStructured() {
		seen := make(map[string]bool, len(d.Fields))
		for _, f := range d.Fields {
			if f.Name == "" {
				return errors.New("structured dtype has an unnamed field")
			}
			if seen[f.Name] {
				return errors.Errorf("structured dtype has duplicate field %q", f.Name)
			}
			seen[f.Name] = true
			if err := f.DType.Validate(); err != nil {
				return errors.Wrapf(err, "field %q", f.Name)
			}
		}
		return nil
	}
	if d.IsObject() {
		return nil
	}
	if len(d.Name) < 3 {
		return errors.Errorf("invalid dtype %q", d.Name)
	}
	switch d.Name[0] {
	case '<', '>', '|':
	default:
		return errors.Errorf("invalid byte order in dtype %q", d.Name)
	}
	switch d.Kind() {
	case 'b', 'i', 'u', 'f', 'c', 'S', 'U', 'V', 'm', 'M':
	default:
		return errors.Errorf("invalid kind in dtype %q", d.Name)
	}
	if d.ItemSize() <= 0 {
		return errors.Errorf("invalid item size in dtype %q", d.Name)
	}
	return nil
}

func (d DType) String() string {
	if !d.IsStructured() {
		return d.Name
	}
	b, err := json.Marshal(d)
	if err != nil {
		return "<invalid dtype>"
	}
	return string(b)
}

// MarshalJSON encodes simple types as a string and structured types as a
// list of [name, dtype] or [name, dtype, shape] entries.
func (d DType) MarshalJSON() ([]byte, error) {
	if !d.IsStructured() {
		return json.Marshal(d.Name)
	}
	fields := make([][]interface{}, len(d.Fields))
	for i, f := range d.Fields {
		entry := []interface{}{f.Name, f.DType}
		if len(f.Shape) > 0 {
			entry = append(entry, f.Shape)
		}
		fields[i] = entry
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes both simple and structured forms.
func (d *DType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*d = DType{Name: name}
		return nil
	}

	var entries [][]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return errors.Wrap(err, "dtype is neither a string nor a field list")
	}
	fields := make([]Field, len(entries))
	for i, e := range entries {
		if len(e) < 2 || len(e) > 3 {
			return errors.Errorf("dtype field %d has %d entries", i, len(e))
		}
		if err := json.Unmarshal(e[0], &fields[i].Name); err != nil {
			return errors.Wrapf(err, "dtype field %d name", i)
		}
		if err := json.Unmarshal(e[1], &fields[i].DType); err != nil {
			return errors.Wrapf(err, "dtype field %q", fields[i].Name)
		}
		if len(e) == 3 {
			if err := json.Unmarshal(e[2], &fields[i].Shape); err != nil {
				return errors.Wrapf(err, "dtype field %q shape", fields[i].Name)
			}
		}
	}
	*d = DType{Fields: fields}
	return nil
}
