package h5zarr

import (
	"bytes"
	"context"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/store"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// Build assembles the consolidated metadata document of a walk: one
// .zgroup or .zarray per node, .zattrs for nodes with attributes and a
// .zchunkstore manifest per array.
func Build(res *Result) (*zarr.Consolidated, error) {
	doc := zarr.NewConsolidated()
	for _, n := range res.Nodes {
		switch n.Kind {
		case GroupNode:
			if err := doc.Set(zarr.Key(n.Path, zarr.GroupKey), zarr.NewGroupMeta()); err != nil {
				return nil, err
			}
		case ArrayNode:
			if err := doc.Set(zarr.Key(n.Path, zarr.ArrayKey), n.Array.Meta); err != nil {
				return nil, err
			}
			if err := doc.Set(zarr.Key(n.Path, zarr.ManifestKey), n.Array.Manifest); err != nil {
				return nil, err
			}
		}
		if len(n.Attrs) > 0 {
			if err := doc.Set(zarr.Key(n.Path, zarr.AttrsKey), n.Attrs); err != nil {
				return nil, err
			}
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, errors.Wrap(err, "consolidated metadata")
	}
	return doc, nil
}

// Consolidate walks f and writes the Zarr hierarchy describing it to st:
// every node document and the consolidated document under MetadataKey,
// all below StorePath. Existing keys are handled according to Mode.
func Consolidate(ctx context.Context, f *hdf5.File, st store.Store, opts ...Option) (*Result, *zarr.Consolidated, error) {
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return nil, nil, err
	}
	if st == nil {
		return nil, nil, errors.New("no store given")
	}

	res, err := walk(ctx, f, o)
	if err != nil {
		return nil, nil, err
	}
	doc, err := Build(res)
	if err != nil {
		return nil, nil, err
	}
	if err := write(ctx, st, doc, o); err != nil {
		return nil, nil, err
	}

	var chunks int
	var stored uint64
	for _, n := range res.Nodes {
		if n.Array != nil {
			chunks += n.Array.Manifest.Len()
			stored += n.Array.Manifest.StoredBytes()
		}
	}
	o.Logger.Info(message.Fields{
		"message":  "consolidated hdf5 file",
		"source":   f.Path(),
		"groups":   res.Count(GroupNode),
		"arrays":   res.Count(ArrayNode),
		"chunks":   chunks,
		"stored":   humanize.IBytes(stored),
		"skipped":  len(res.Skipped),
		"declined": len(res.Rechunk),
		"mode":     o.Mode,
	})
	return res, doc, nil
}

// WriteConsolidated writes doc to st the way Consolidate does.
func WriteConsolidated(ctx context.Context, st store.Store, doc *zarr.Consolidated, opts ...Option) error {
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return err
	}
	return write(ctx, st, doc, o)
}

func write(ctx context.Context, st store.Store, doc *zarr.Consolidated, o *Options) error {
	target := st
	if o.StorePath != "" {
		target = store.Prefixed(st, o.StorePath)
	}

	values := map[string][]byte{}
	keys := doc.Keys()
	for _, k := range keys {
		raw, err := doc.Raw(k)
		if err != nil {
			return err
		}
		values[k] = raw
	}
	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		return err
	}
	values[o.MetadataKey] = buf.Bytes()
	keys = append(keys, o.MetadataKey)

	switch {
	case o.Mode == ModeReadOnly:
		return &StoreConflictError{Key: zarr.Key(o.StorePath, o.MetadataKey)}
	case o.Mode.createOnly():
		for _, k := range keys {
			ok, err := store.Has(ctx, target, k)
			if err != nil {
				return errors.Wrapf(err, "checking %s", k)
			}
			if ok {
				return &StoreConflictError{Key: zarr.Key(o.StorePath, k)}
			}
		}
	case o.Mode == ModeUpdate:
		ok, err := store.Has(ctx, target, zarr.GroupKey)
		if err != nil {
			return errors.Wrapf(err, "checking %s", zarr.GroupKey)
		}
		if !ok {
			return errors.Errorf("mode %s: no hierarchy at %q", o.Mode, o.StorePath)
		}
	}

	if o.Mode == ModeOverwrite {
		if err := clearStale(ctx, target, values); err != nil {
			return err
		}
	}

	written := 0
	for _, k := range keys {
		if o.Mode == ModeAppend {
			ok, err := store.Has(ctx, target, k)
			if err != nil {
				return errors.Wrapf(err, "checking %s", k)
			}
			if ok {
				continue
			}
		}
		if err := target.Set(ctx, k, values[k]); err != nil {
			return errors.Wrapf(err, "writing %s", zarr.Key(o.StorePath, k))
		}
		written++
	}
	o.Logger.Debug(message.Fields{
		"message": "wrote store keys",
		"written": written,
		"keys":    len(keys),
		"prefix":  o.StorePath,
	})
	return nil
}

// clearStale removes the keys under the target that the new hierarchy
// does not write, so per-key readers do not see nodes left over from an
// earlier consolidation.
func clearStale(ctx context.Context, target store.Store, keep map[string][]byte) error {
	existing, err := target.ListKeys(ctx)
	if err != nil {
		return errors.Wrap(err, "listing existing keys")
	}
	for _, k := range existing {
		if _, ok := keep[k]; ok {
			continue
		}
		if err := store.Delete(ctx, target, k); err != nil {
			return errors.Wrapf(err, "removing stale key %s", k)
		}
	}
	return nil
}

// Export writes the consolidated document as standalone JSON.
func Export(w io.Writer, doc *zarr.Consolidated) error {
	return doc.Encode(w)
}

// LoadConsolidated reads and validates a document written by Export.
func LoadConsolidated(r io.Reader) (*zarr.Consolidated, error) {
	doc, err := zarr.DecodeConsolidated(r)
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReadConsolidated loads the consolidated document from a store written
// by Consolidate.
func ReadConsolidated(ctx context.Context, st store.Store, opts ...Option) (*zarr.Consolidated, error) {
	o := NewOptions(opts...)
	key := zarr.Key(o.StorePath, o.MetadataKey)
	data, err := st.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	return LoadConsolidated(bytes.NewReader(data))
}
