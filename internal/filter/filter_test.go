package filter

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	binpkg "github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

func TestFilterIDs(t *testing.T) {
	for id, mk := range Registry {
		if got := mk(nil).ID(); got != id {
			t.Errorf("%s: ID() = %d, want %d", Name(id), got, id)
		}
	}
}

func TestDeflateReadsZlibStreams(t *testing.T) {
	original := []byte("chunk payload chunk payload chunk payload")
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(original)
	zw.Close()

	got, err := NewDeflate(nil).Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("got %q", got)
	}
}

func TestShuffleDecode(t *testing.T) {
	shuffled := []byte{
		0x01, 0x11, 0x21, 0x31,
		0x02, 0x12, 0x22, 0x32,
		0x03, 0x13, 0x23, 0x33,
		0x04, 0x14, 0x24, 0x34,
	}
	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x11, 0x12, 0x13, 0x14,
		0x21, 0x22, 0x23, 0x24,
		0x31, 0x32, 0x33, 0x34,
	}
	got, err := NewShuffle([]uint32{4}).Decode(shuffled)
	if err != nil || !bytes.Equal(got, want) {
		t.Errorf("4-byte elements: %v, %v", got, err)
	}

	// one-byte elements pass through
	data := []byte{1, 2, 3, 4, 5}
	if got, err := NewShuffle([]uint32{1}).Decode(data); err != nil || !bytes.Equal(got, data) {
		t.Errorf("1-byte elements: %v, %v", got, err)
	}
}

func TestFletcher32Checksum(t *testing.T) {
	data := []byte("test data for checksum")
	sum := make([]byte, 4)
	binary.LittleEndian.PutUint32(sum, binpkg.Fletcher32(data))

	got, err := NewFletcher32(nil).Decode(append(append([]byte(nil), data...), sum...))
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("valid checksum: %q, %v", got, err)
	}
	if _, err := NewFletcher32(nil).Decode(append(append([]byte(nil), data...), 0xde, 0xad, 0xbe, 0xef)); err == nil {
		t.Error("expected an error for a bad checksum")
	}
}

func TestPipelineEmpty(t *testing.T) {
	p, err := NewPipeline(nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	if !p.Empty() {
		t.Error("Expected empty pipeline")
	}

	data := []byte("unchanged")
	result, err := p.Decode(data, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if !bytes.Equal(result, data) {
		t.Error("Empty pipeline should pass data through unchanged")
	}
}

func TestPipelineWithFilters(t *testing.T) {
	// Create a pipeline with shuffle + deflate
	fp := &message.FilterPipeline{
		Version: 2,
		Filters: []message.FilterInfo{
			{ID: message.FilterShuffle, ClientData: []uint32{4}},
			{ID: message.FilterDeflate, ClientData: []uint32{6}},
		},
	}

	p, err := NewPipeline(fp)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	if p.Len() != 2 {
		t.Errorf("expected 2 filters, got %d", p.Len())
	}
}

func TestPipelineFilterMask(t *testing.T) {
	// Test that filter mask correctly skips filters
	fp := &message.FilterPipeline{
		Version: 2,
		Filters: []message.FilterInfo{
			{ID: message.FilterShuffle, ClientData: []uint32{1}}, // Will be skipped
		},
	}

	p, err := NewPipeline(fp)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	data := []byte{1, 2, 3, 4}

	// Filter mask bit 0 set = skip filter 0
	result, err := p.Decode(data, 0x01)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	// Data should be unchanged since shuffle was skipped
	if !bytes.Equal(result, data) {
		t.Error("Skipped filter should leave data unchanged")
	}
}

func TestPipelineEncodeDecode(t *testing.T) {
	original := make([]byte, 4096)
	for i := range original {
		original[i] = byte(i % 251)
	}

	pipelines := map[string][]message.FilterInfo{
		"shuffle+deflate+fletcher32": {
			{ID: message.FilterShuffle, ClientData: []uint32{4}},
			{ID: message.FilterDeflate, ClientData: []uint32{6}},
			{ID: message.FilterFletcher32},
		},
		"bzip2":  {{ID: message.FilterBZIP2, ClientData: []uint32{9}}},
		"lz4":    {{ID: message.FilterLZ4}},
		"zstd":   {{ID: message.FilterShuffle, ClientData: []uint32{8}}, {ID: message.FilterZstd, ClientData: []uint32{3}}},
		"single": {{ID: message.FilterFletcher32}},
	}

	for name, filters := range pipelines {
		t.Run(name, func(t *testing.T) {
			p, err := NewPipeline(&message.FilterPipeline{Version: 2, Filters: filters})
			if err != nil {
				t.Fatalf("NewPipeline failed: %v", err)
			}
			encoded, err := p.Encode(original)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			decoded, err := p.Decode(encoded, 0)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !bytes.Equal(decoded, original) {
				t.Error("pipeline round trip mismatch")
			}
		})
	}
}

func TestUnsupportedFilter(t *testing.T) {
	_, err := New(message.FilterInfo{ID: message.FilterSZIP})
	if err == nil {
		t.Fatal("expected error for SZIP")
	}

	f, err := New(message.FilterInfo{ID: message.FilterLZF, Flags: 1})
	if err != nil || f != nil {
		t.Fatalf("optional unknown filter should be skipped, got %v, %v", f, err)
	}

	if Name(message.FilterBlosc) != "Blosc" {
		t.Errorf("unexpected name %q", Name(message.FilterBlosc))
	}
	if Name(999) != "filter-999" {
		t.Errorf("unexpected name %q", Name(999))
	}
}
