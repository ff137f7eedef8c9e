package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/robert-malhotra/h5zarr/zarr"
)

func lsCommand() cli.Command {
	return cli.Command{
		Name:  "ls",
		Usage: "list the groups and arrays of a consolidated document",
		Flags: storeFlags(
			cli.StringFlag{
				Name:   metadataFlagName,
				Usage:  "consolidated document written by 'consolidate --export'",
				EnvVar: "H5ZARR_METADATA",
			},
		),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			doc, err := loadMetadata(ctx, c)
			if err != nil {
				return err
			}
			return list(os.Stdout, doc)
		},
	}
}

func list(w io.Writer, doc *zarr.Consolidated) error {
	paths := append(doc.Groups(), doc.Arrays()...)
	sort.Strings(paths)

	for _, p := range paths {
		name := "/" + p
		if !doc.IsArray(p) {
			if p != "" {
				name += "/"
			}
			fmt.Fprintln(w, name)
			continue
		}
		meta, err := doc.Array(p)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s  %s %v chunks %v", name, meta.DType, meta.Shape, meta.Chunks)
		if m, err := doc.Manifest(p); err == nil {
			line += fmt.Sprintf("  %d stored (%s)", m.Len(), humanize.IBytes(m.StoredBytes()))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
