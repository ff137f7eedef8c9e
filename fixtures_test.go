package h5zarr

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/send"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/source"
)

// writeFile builds an HDF5 file with the hdf5 writer and returns its path.
func writeFile(t *testing.T, build func(root *hdf5.Group) error) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.h5")
	f, err := hdf5.Create(path)
	require.NoError(t, err)
	if err := build(f.Root()); err != nil {
		f.Close()
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func openFile(t *testing.T, path string) *hdf5.File {
	t.Helper()
	f, err := hdf5.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func openSource(t *testing.T, path string) source.RangeSource {
	t.Helper()
	src, err := source.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func sequence(n int) []int32 {
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(i)
	}
	return out
}

// nested builds a file with groups, attributes, links and several
// storage layouts:
//
//	/a            group, attrs title and n
//	/a/b/y        float64[4] contiguous
//	/a/x          int32[10] chunked 4, deflate
//	/alias        soft link to /a
//	/dangling     soft link to /missing
//	/ext          external link
//	/z            int32[3] compact
func nested(root *hdf5.Group) error {
	a, err := root.CreateGroup("a")
	if err != nil {
		return err
	}
	if err := a.SetAttr("title", "hello"); err != nil {
		return err
	}
	if err := a.SetAttr("n", int64(3)); err != nil {
		return err
	}
	b, err := a.CreateGroup("b")
	if err != nil {
		return err
	}
	if _, err := b.CreateDataset("y", []float64{0.5, 1.5, 2.5, 3.5}); err != nil {
		return err
	}
	if _, err := a.CreateDataset("x", sequence(10), hdf5.WithChunks(4), hdf5.WithCompression(4),
		hdf5.WithAttribute("units", "m")); err != nil {
		return err
	}
	if err := root.CreateSoftLink("alias", "/a"); err != nil {
		return err
	}
	if err := root.CreateSoftLink("dangling", "/missing"); err != nil {
		return err
	}
	if err := root.CreateExternalLink("ext", "other.h5", "/data"); err != nil {
		return err
	}
	_, err = root.CreateDataset("z", []int32{7, 8, 9}, hdf5.WithCompact())
	return err
}

// captureLogger returns a logger whose messages can be inspected.
func captureLogger(t *testing.T) (*send.InternalSender, Option) {
	t.Helper()
	sender, err := send.NewInternalLogger("h5zarr", send.LevelInfo{Threshold: level.Debug, Default: level.Info})
	require.NoError(t, err)
	return sender, WithLogger(logging.MakeGrip(sender))
}

// drain returns the text of every captured message.
func drain(sender *send.InternalSender) []string {
	var out []string
	for sender.HasMessage() {
		out = append(out, sender.GetMessage().Message.String())
	}
	return out
}

// countingSource records the ranges read through it.
type countingSource struct {
	source.RangeSource

	mu     sync.Mutex
	ranges [][2]int64
}

func (c *countingSource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	c.mu.Lock()
	c.ranges = append(c.ranges, [2]int64{offset, length})
	c.mu.Unlock()
	return c.RangeSource.ReadRange(ctx, offset, length)
}

func (c *countingSource) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ranges)
}

// stalledSource never answers; reads end when the context does.
type stalledSource struct {
	source.RangeSource
}

func (stalledSource) ReadRange(ctx context.Context, _, _ int64) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
