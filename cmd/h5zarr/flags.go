package main

import (
	"context"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/robert-malhotra/h5zarr"
	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/source"
	"github.com/robert-malhotra/h5zarr/store"
	"github.com/robert-malhotra/h5zarr/zarr"
)

const (
	sourceFlagName      = "source"
	storeFlagName       = "store"
	storePathFlagName   = "store-path"
	metadataKeyFlagName = "metadata-key"
	metadataFlagName    = "metadata"
	groupFlagName       = "group"
	timeoutFlagName     = "timeout"
	concurrencyFlagName = "concurrency"
	retryFlagName       = "retry-attempts"
)

func sourceFlag(usage string) cli.Flag {
	return cli.StringFlag{
		Name:   sourceFlagName + ", s",
		Usage:  usage,
		EnvVar: "H5ZARR_SOURCE",
	}
}

func retryFlag() cli.Flag {
	return cli.IntFlag{
		Name:   retryFlagName,
		Usage:  "tries per failed range fetch, 0 or 1 to disable retries",
		EnvVar: "H5ZARR_RETRY_ATTEMPTS",
	}
}

func fetchFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		retryFlag(),
		cli.DurationFlag{
			Name:   timeoutFlagName,
			Usage:  "timeout of each range fetch, negative to disable",
			Value:  h5zarr.DefaultTimeout,
			EnvVar: "H5ZARR_TIMEOUT",
		},
		cli.IntFlag{
			Name:   concurrencyFlagName,
			Usage:  "concurrent chunk fetches per read",
			Value:  h5zarr.DefaultConcurrency,
			EnvVar: "H5ZARR_CONCURRENCY",
		},
	)
}

func storeFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags,
		cli.StringFlag{
			Name:   storeFlagName,
			Usage:  "output store: 'memory', a directory, bolt://file.db or s3://bucket/prefix",
			EnvVar: "H5ZARR_STORE",
		},
		cli.StringFlag{
			Name:   storePathFlagName,
			Usage:  "key prefix inside the store",
			EnvVar: "H5ZARR_STORE_PATH",
		},
		cli.StringFlag{
			Name:   metadataKeyFlagName,
			Usage:  "key of the consolidated metadata document",
			Value:  zarr.MetadataKey,
			EnvVar: "H5ZARR_METADATA_KEY",
		},
	)
}

// openFile opens the HDF5 file behind uri through a range source, so
// remote files are read without downloading them.
func openFile(ctx context.Context, uri string, opts source.Options) (*hdf5.File, source.RangeSource, error) {
	if uri == "" {
		return nil, nil, errors.New("no source given")
	}
	if expanded, err := homedir.Expand(uri); err == nil {
		uri = expanded
	}
	src, err := source.Open(ctx, uri, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening source %q", uri)
	}
	f, err := hdf5.OpenReader(source.ReaderAt(ctx, src), src.URI())
	if err != nil {
		src.Close()
		return nil, nil, errors.Wrapf(err, "opening hdf5 file %q", uri)
	}
	return f, src, nil
}

// loadMetadata reads a consolidated document from the exported JSON file
// given by --metadata, or from the store given by --store.
func loadMetadata(ctx context.Context, c *cli.Context) (*zarr.Consolidated, error) {
	if path := c.String(metadataFlagName); path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		r, err := os.Open(expanded)
		if err != nil {
			return nil, errors.Wrap(err, "opening metadata")
		}
		defer r.Close()
		return h5zarr.LoadConsolidated(r)
	}

	uri := c.String(storeFlagName)
	if uri == "" {
		return nil, errors.Errorf("one of --%s or --%s is required", metadataFlagName, storeFlagName)
	}
	st, err := store.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer store.Close(st)
	return h5zarr.ReadConsolidated(ctx, st,
		h5zarr.WithStorePath(c.String(storePathFlagName)),
		h5zarr.WithMetadataKey(c.String(metadataKeyFlagName)),
	)
}

// retryPolicy is the fetch retry policy selected by --retry-attempts, or
// nil when retries are off.
func retryPolicy(c *cli.Context) (*source.Retry, error) {
	conf := h5zarr.Config{}
	if n := c.Int(retryFlagName); n > 1 {
		conf.Retry = &h5zarr.RetryConfig{Attempts: n}
	}
	return conf.RetryPolicy()
}

func fetchTimeout(c *cli.Context) time.Duration {
	return c.Duration(timeoutFlagName)
}
