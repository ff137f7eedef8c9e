package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/robert-malhotra/h5zarr"
	"github.com/robert-malhotra/h5zarr/source"
	"github.com/robert-malhotra/h5zarr/store"
)

func consolidateCommand() cli.Command {
	const (
		configFlagName          = "config"
		modeFlagName            = "mode"
		maxChunkSizeFlagName    = "max-chunk-size"
		strictFlagName          = "strict"
		skipUnsupportedFlagName = "skip-unsupported"
		separatorFlagName       = "dimension-separator"
		exportFlagName          = "export"
		cacheSizeFlagName       = "cache-size"
	)

	return cli.Command{
		Name:  "consolidate",
		Usage: "write zarr metadata and chunk manifests for an hdf5 file",
		Flags: storeFlags(
			sourceFlag("hdf5 file: a path, s3://bucket/key or http(s) URL"),
			cli.StringFlag{
				Name:   configFlagName + ", c",
				Usage:  "YAML job file; flags override its values",
				EnvVar: "H5ZARR_CONFIG",
			},
			cli.StringFlag{
				Name:   modeFlagName + ", m",
				Usage:  "store mode: 'w|w-|x|a|r+|r'",
				EnvVar: "H5ZARR_MODE",
			},
			cli.StringFlag{
				Name:   groupFlagName + ", g",
				Usage:  "hdf5 group that becomes the zarr root",
				EnvVar: "H5ZARR_GROUP",
			},
			cli.StringFlag{
				Name:   maxChunkSizeFlagName,
				Usage:  "split larger uncompressed chunks, e.g. '64MiB'",
				EnvVar: "H5ZARR_MAX_CHUNK_SIZE",
			},
			cli.StringFlag{
				Name:   separatorFlagName,
				Usage:  "chunk key separator, '.' or '/'",
				EnvVar: "H5ZARR_DIMENSION_SEPARATOR",
			},
			cli.StringFlag{
				Name:   cacheSizeFlagName,
				Usage:  "LRU cache in front of the store, e.g. '1GiB'",
				EnvVar: "H5ZARR_CACHE_SIZE",
			},
			cli.BoolFlag{
				Name:  strictFlagName,
				Usage: "fail on datasets that cannot be rechunked or use unknown filters",
			},
			cli.BoolFlag{
				Name:  skipUnsupportedFlagName,
				Usage: "skip datasets with unsupported datatypes",
			},
			retryFlag(),
			cli.StringFlag{
				Name:  exportFlagName + ", o",
				Usage: "also write the consolidated document to this JSON file",
			},
		),
		Action: func(c *cli.Context) error {
			conf := &h5zarr.Config{}
			if path := c.String(configFlagName); path != "" {
				var err error
				if conf, err = h5zarr.LoadConfig(path); err != nil {
					return err
				}
			}
			for flag, dst := range map[string]*string{
				sourceFlagName:       &conf.Source,
				storeFlagName:        &conf.Store,
				storePathFlagName:    &conf.StorePath,
				metadataKeyFlagName:  &conf.MetadataKey,
				modeFlagName:         &conf.Mode,
				groupFlagName:        &conf.Group,
				maxChunkSizeFlagName: &conf.MaxChunkSize,
				separatorFlagName:    &conf.DimensionSeparator,
				cacheSizeFlagName:    &conf.CacheSize,
			} {
				if v := c.String(flag); v != "" && (c.IsSet(flag) || *dst == "") {
					*dst = v
				}
			}
			conf.Strict = conf.Strict || c.Bool(strictFlagName)
			conf.SkipUnsupported = conf.SkipUnsupported || c.Bool(skipUnsupportedFlagName)
			if n := c.Int(retryFlagName); c.IsSet(retryFlagName) {
				switch {
				case n <= 1:
					conf.Retry = nil
				case conf.Retry == nil:
					conf.Retry = &h5zarr.RetryConfig{Attempts: n}
				default:
					conf.Retry.Attempts = n
				}
			}
			if conf.Store == "" {
				conf.Store = "memory"
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			return consolidate(ctx, conf, c.String(exportFlagName))
		},
	}
}

func consolidate(ctx context.Context, conf *h5zarr.Config, export string) error {
	opts, err := conf.Options()
	if err != nil {
		return err
	}
	cacheBytes, err := conf.CacheBytes()
	if err != nil {
		return err
	}
	retry, err := conf.RetryPolicy()
	if err != nil {
		return err
	}
	o := h5zarr.NewOptions(opts...)

	f, src, err := openFile(ctx, conf.Source, source.Options{Timeout: o.FetchTimeout, Retry: retry})
	if err != nil {
		return err
	}
	defer src.Close()
	defer f.Close()

	base, err := store.Open(ctx, conf.Store)
	if err != nil {
		return errors.Wrapf(err, "opening store %q", conf.Store)
	}
	defer func() { grip.Warning(store.Close(base)) }()

	st := base
	if cacheBytes > 0 {
		if st, err = store.NewCache(base, cacheBytes); err != nil {
			return err
		}
	}

	res, doc, err := h5zarr.Consolidate(ctx, f, st, append(opts, h5zarr.WithSourceURI(src.URI()))...)
	if err != nil {
		return err
	}

	for _, s := range res.Skipped {
		fmt.Printf("skipped  %s: %s\n", s.Path, s.Reason)
	}
	for _, s := range res.Rechunk {
		fmt.Printf("kept     %s: %s\n", s.Path, s.Reason)
	}
	var chunks int
	var stored uint64
	for _, n := range res.Nodes {
		if n.Array != nil {
			chunks += n.Array.Manifest.Len()
			stored += n.Array.Manifest.StoredBytes()
		}
	}
	fmt.Printf("%s: %d groups, %d arrays, %s chunks (%s) -> %s\n",
		src.URI(), res.Count(h5zarr.GroupNode), res.Count(h5zarr.ArrayNode),
		humanize.Comma(int64(chunks)), humanize.IBytes(stored), conf.Store)

	if export == "" {
		return nil
	}
	out, err := os.Create(export)
	if err != nil {
		return errors.Wrap(err, "creating export file")
	}
	if err := h5zarr.Export(out, doc); err != nil {
		out.Close()
		return errors.Wrapf(err, "exporting to %q", export)
	}
	return out.Close()
}
