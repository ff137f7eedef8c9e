package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/robert-malhotra/h5zarr"
	"github.com/robert-malhotra/h5zarr/source"
)

func readCommand() cli.Command {
	const (
		arrayFlagName = "array"
		sliceFlagName = "slice"
	)

	return cli.Command{
		Name:  "read",
		Usage: "read a region of an array through its chunk manifest",
		Flags: fetchFlags(storeFlags(
			sourceFlag("hdf5 file; defaults to the uri recorded in the manifest"),
			cli.StringFlag{
				Name:   metadataFlagName,
				Usage:  "consolidated document written by 'consolidate --export'",
				EnvVar: "H5ZARR_METADATA",
			},
			cli.StringFlag{
				Name:  arrayFlagName + ", a",
				Usage: "array path inside the zarr hierarchy",
			},
			cli.StringFlag{
				Name:  sliceFlagName,
				Usage: "per-dimension slices, e.g. '0:10,5:6'",
			},
		)...),
		Action: func(c *cli.Context) error {
			path := strings.Trim(c.String(arrayFlagName), "/")
			if path == "" {
				return errors.Errorf("--%s is required", arrayFlagName)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			doc, err := loadMetadata(ctx, c)
			if err != nil {
				return err
			}
			meta, err := doc.Array(path)
			if err != nil {
				return err
			}
			sel, err := h5zarr.ParseSelection(c.String(sliceFlagName), meta.Shape)
			if err != nil {
				return err
			}

			uri := c.String(sourceFlagName)
			if uri == "" {
				m, err := doc.Manifest(path)
				if err != nil {
					return err
				}
				uri = m.Source.URI
			}
			retry, err := retryPolicy(c)
			if err != nil {
				return err
			}
			// the reader bounds each fetch itself
			src, err := source.Open(ctx, uri, source.Options{Timeout: -1, Retry: retry})
			if err != nil {
				return errors.Wrapf(err, "opening source %q", uri)
			}
			defer src.Close()

			r, err := h5zarr.NewReader(doc, src,
				h5zarr.WithFetchTimeout(fetchTimeout(c)),
				h5zarr.WithConcurrency(c.Int(concurrencyFlagName)),
			)
			if err != nil {
				return err
			}
			out, err := r.Read(ctx, path, sel)
			if err != nil {
				return err
			}
			return printArray(os.Stdout, out)
		},
	}
}

// printArray writes one line per row of the last dimension.
func printArray(w io.Writer, a *h5zarr.Array) error {
	var values []string
	switch a.DType.Kind() {
	case 'i', 'u', 'b':
		ints, err := a.Int64s()
		if err != nil {
			return err
		}
		for _, v := range ints {
			values = append(values, fmt.Sprint(v))
		}
	case 'f':
		floats, err := a.Float64s()
		if err != nil {
			return err
		}
		for _, v := range floats {
			values = append(values, fmt.Sprint(v))
		}
	case 'S', 'U', 'O':
		strs, err := a.Strings()
		if err != nil {
			return err
		}
		for _, v := range strs {
			values = append(values, fmt.Sprintf("%q", v))
		}
	default:
		size := a.DType.ItemSize()
		for i := 0; i < a.Len(); i++ {
			values = append(values, hex.EncodeToString(a.Data[i*size:(i+1)*size]))
		}
	}

	fmt.Fprintf(w, "# %s %s %v\n", a.Path, a.DType, a.Shape)
	row := 1
	if len(a.Shape) > 0 && a.Shape[len(a.Shape)-1] > 0 {
		row = int(a.Shape[len(a.Shape)-1])
	}
	for i := 0; i < len(values); i += row {
		end := i + row
		if end > len(values) {
			end = len(values)
		}
		fmt.Fprintln(w, strings.Join(values[i:end], " "))
	}
	return nil
}
