package codec

// numcodecs codec ids.
const (
	ZlibID       = "zlib"
	GZipID       = "gzip"
	BZ2ID        = "bz2"
	ZstdID       = "zstd"
	LZ4ID        = "lz4"
	LZ4H5ID      = "imagecodecs_lz4h5"
	BloscID      = "blosc"
	ShuffleID    = "shuffle"
	Fletcher32ID = "fletcher32"
	VLenUTF8ID   = "vlen-utf8"
)

// IsCompressor reports whether id names a compressor rather than a filter.
func IsCompressor(id string) bool {
	switch id {
	case ZlibID, GZipID, BZ2ID, ZstdID, LZ4ID, LZ4H5ID, BloscID:
		return true
	}
	return false
}
