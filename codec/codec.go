// Package codec implements the numcodecs codecs that h5zarr emits in Zarr
// array metadata, so chunks can be decoded (and, for fixtures, encoded)
// without a Python runtime.
//
// Codecs are looked up by their numcodecs id through [New]. A chunk is
// decoded by a [Chain]: the compressor first, then the filters in reverse.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// ErrUnknownCodec is returned by New for ids that are not registered.
var ErrUnknownCodec = errors.New("unknown codec")

// ErrUnsupported is returned by New for codecs that can be described in
// metadata but not decoded by this package.
var ErrUnsupported = errors.New("codec not supported for decoding")

// Codec transforms chunk bytes for one numcodecs codec id.
type Codec interface {
	// ID returns the numcodecs codec id.
	ID() string

	// Encode transforms decoded bytes into their stored form.
	Encode(src []byte) ([]byte, error)

	// Decode transforms stored bytes back into decoded form.
	Decode(src []byte) ([]byte, error)
}

// StringCodec is implemented by object codecs that turn a sequence of
// strings into bytes (vlen-utf8).
type StringCodec interface {
	ID() string
	EncodeStrings(values []string) ([]byte, error)
	DecodeStrings(src []byte) ([]string, error)
}

// Constructor builds a codec from its configuration.
type Constructor func(cfg Config) (Codec, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{
		ZlibID:       newZlib,
		GZipID:       newGZip,
		BZ2ID:        newBZ2,
		ZstdID:       newZstd,
		LZ4ID:        newLZ4,
		LZ4H5ID:      newLZ4H5,
		ShuffleID:    newShuffle,
		Fletcher32ID: newFletcher32,
		BloscID:      unsupported(BloscID),
		VLenUTF8ID:   unsupported(VLenUTF8ID),
	}
)

// Register adds or replaces the constructor for id.
func Register(id string, fn Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = fn
}

// Registered returns the sorted list of registered codec ids.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds the codec described by cfg.
func New(cfg Config) (Codec, error) {
	id := cfg.ID()
	if id == "" {
		return nil, errors.New("codec configuration has no id")
	}

	registryMu.RLock()
	fn, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCodec, "codec %q", id)
	}

	c, err := fn(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "configuring codec %q", id)
	}
	return c, nil
}

func unsupported(id string) Constructor {
	return func(Config) (Codec, error) {
		return nil, errors.Wrapf(ErrUnsupported, "codec %q", id)
	}
}

// Config is a codec configuration as it appears in .zarray metadata:
// an object holding "id" plus codec specific parameters.
type Config map[string]interface{}

// NewConfig builds a configuration for id with the given key/value pairs.
func NewConfig(id string, kv ...interface{}) Config {
	cfg := Config{"id": id}
	for i := 0; i+1 < len(kv); i += 2 {
		cfg[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return cfg
}

// ID returns the codec id, or "" when missing.
func (c Config) ID() string {
	id, _ := c["id"].(string)
	return id
}

// Int returns an integer parameter, accepting the numeric types produced by
// both Go literals and JSON decoding.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	case interface{ Int64() (int64, error) }:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// String returns a string parameter.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Chain decodes chunks through a compressor and a list of filters.
type Chain struct {
	compressor Codec
	filters    []Codec
	object     StringCodec
}

// NewChain builds the codec chain for an array. compressor may be nil.
// A vlen-utf8 entry in filters becomes the chain's object codec.
func NewChain(compressor Config, filters []Config) (*Chain, error) {
	ch := &Chain{}
	if compressor != nil {
		c, err := New(compressor)
		if err != nil {
			return nil, errors.Wrap(err, "compressor")
		}
		ch.compressor = c
	}
	for i, f := range filters {
		if f.ID() == VLenUTF8ID {
			if i != 0 {
				return nil, errors.Errorf("%s must be the first filter", VLenUTF8ID)
			}
			ch.object = VLenUTF8{}
			continue
		}
		c, err := New(f)
		if err != nil {
			return nil, errors.Wrapf(err, "filter %d", i)
		}
		ch.filters = append(ch.filters, c)
	}
	return ch, nil
}

// HasObjectCodec reports whether the chain decodes to strings.
func (ch *Chain) HasObjectCodec() bool {
	return ch.object != nil
}

// Decode applies the compressor then the filters in reverse order.
func (ch *Chain) Decode(src []byte) ([]byte, error) {
	data := src
	var err error
	if ch.compressor != nil {
		if data, err = ch.compressor.Decode(data); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", ch.compressor.ID())
		}
	}
	for i := len(ch.filters) - 1; i >= 0; i-- {
		if data, err = ch.filters[i].Decode(data); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", ch.filters[i].ID())
		}
	}
	return data, nil
}

// Encode applies the filters in order then the compressor.
func (ch *Chain) Encode(src []byte) ([]byte, error) {
	data := src
	var err error
	for _, f := range ch.filters {
		if data, err = f.Encode(data); err != nil {
			return nil, errors.Wrapf(err, "encoding %s", f.ID())
		}
	}
	if ch.compressor != nil {
		if data, err = ch.compressor.Encode(data); err != nil {
			return nil, errors.Wrapf(err, "encoding %s", ch.compressor.ID())
		}
	}
	return data, nil
}

// DecodeStrings decodes a chunk of an object (|O) array.
func (ch *Chain) DecodeStrings(src []byte) ([]string, error) {
	if ch.object == nil {
		return nil, errors.New("chain has no object codec")
	}
	data, err := ch.Decode(src)
	if err != nil {
		return nil, err
	}
	return ch.object.DecodeStrings(data)
}

// EncodeStrings encodes a chunk of an object (|O) array.
func (ch *Chain) EncodeStrings(values []string) ([]byte, error) {
	if ch.object == nil {
		return nil, errors.New("chain has no object codec")
	}
	data, err := ch.object.EncodeStrings(values)
	if err != nil {
		return nil, err
	}
	return ch.Encode(data)
}
