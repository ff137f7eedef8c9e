package h5zarr

import (
	"time"

	"github.com/mongodb/grip"
	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/zarr"
)

// Mode controls how Consolidate treats keys already present in the store.
type Mode string

const (
	// ModeOverwrite replaces existing keys.
	ModeOverwrite Mode = "w"
	// ModeCreate fails if any target key exists. "x" is an alias.
	ModeCreate    Mode = "w-"
	ModeExclusive Mode = "x"
	// ModeAppend writes only the keys that do not exist yet.
	ModeAppend Mode = "a"
	// ModeReadOnly refuses every write.
	ModeReadOnly Mode = "r"
	// ModeUpdate overwrites keys of a hierarchy that must already exist.
	ModeUpdate Mode = "r+"
)

// ParseMode validates a store mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverwrite, ModeCreate, ModeExclusive, ModeAppend, ModeReadOnly, ModeUpdate:
		return m, nil
	case "":
		return ModeOverwrite, nil
	}
	return "", errors.Errorf("invalid store mode %q", s)
}

func (m Mode) createOnly() bool {
	return m == ModeCreate || m == ModeExclusive
}

const (
	DefaultConcurrency = 8
	DefaultTimeout     = 30 * time.Second
)

// Options configures walking, consolidation and reads.
type Options struct {
	// Logger receives skip, rechunk and summary events.
	Logger grip.Journaler

	// RootGroup is the HDF5 group that becomes the Zarr root.
	RootGroup string

	// StorePath prefixes every key written to the store.
	StorePath string

	// MetadataKey is the key of the consolidated document.
	MetadataKey string

	Mode Mode

	// MaxChunkBytes limits the size of one chunk. Zero means no limit.
	MaxChunkBytes int64

	// Strict turns declined rechunk plans and unsupported codecs into
	// errors.
	Strict bool

	// SkipUnsupported skips datasets with unsupported datatypes instead
	// of failing.
	SkipUnsupported bool

	// DimensionSeparator separates chunk key components, "." or "/".
	DimensionSeparator string

	// SourceURI is recorded in every manifest. It defaults to the path
	// the file was opened with.
	SourceURI string

	// Concurrency bounds the chunk fetches of one read.
	Concurrency int

	// FetchTimeout bounds each chunk fetch. Negative disables it.
	FetchTimeout time.Duration
}

// Option sets a field of Options.
type Option func(*Options)

// NewOptions returns the defaults with opts applied.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		MetadataKey:        zarr.MetadataKey,
		Mode:               ModeOverwrite,
		DimensionSeparator: zarr.DefaultSep,
		Concurrency:        DefaultConcurrency,
		FetchTimeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = grip.GetDefaultJournaler()
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.MetadataKey == "" {
		o.MetadataKey = zarr.MetadataKey
	}
	if o.DimensionSeparator == "" {
		o.DimensionSeparator = zarr.DefaultSep
	}
	return o
}

// Validate checks option values that cannot be corrected silently.
func (o *Options) Validate() error {
	if o.DimensionSeparator != "." && o.DimensionSeparator != "/" {
		return errors.Errorf("invalid dimension separator %q", o.DimensionSeparator)
	}
	if o.MaxChunkBytes < 0 {
		return errors.Errorf("negative max chunk size %d", o.MaxChunkBytes)
	}
	_, err := ParseMode(string(o.Mode))
	return err
}

func WithLogger(l grip.Journaler) Option { return func(o *Options) { o.Logger = l } }

func WithRootGroup(path string) Option { return func(o *Options) { o.RootGroup = path } }

func WithStorePath(prefix string) Option { return func(o *Options) { o.StorePath = prefix } }

func WithMetadataKey(key string) Option { return func(o *Options) { o.MetadataKey = key } }

func WithMode(m Mode) Option { return func(o *Options) { o.Mode = m } }

func WithMaxChunkBytes(n int64) Option { return func(o *Options) { o.MaxChunkBytes = n } }

func WithStrict() Option { return func(o *Options) { o.Strict = true } }

func WithSkipUnsupported() Option { return func(o *Options) { o.SkipUnsupported = true } }

func WithDimensionSeparator(sep string) Option {
	return func(o *Options) { o.DimensionSeparator = sep }
}

func WithSourceURI(uri string) Option { return func(o *Options) { o.SourceURI = uri } }

func WithConcurrency(n int) Option { return func(o *Options) { o.Concurrency = n } }

func WithFetchTimeout(d time.Duration) Option { return func(o *Options) { o.FetchTimeout = d } }
