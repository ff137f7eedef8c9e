package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/robert-malhotra/h5zarr"
	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/source"
)

func inspectCommand() cli.Command {
	return cli.Command{
		Name:  "inspect",
		Usage: "print the hdf5 tree with storage layout, chunk index and filters",
		Flags: fetchFlags(
			sourceFlag("hdf5 file: a path, s3://bucket/key or http(s) URL"),
			cli.StringFlag{
				Name:  groupFlagName + ", g",
				Usage: "start at this group",
				Value: "/",
			},
		),
		Action: func(c *cli.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			retry, err := retryPolicy(c)
			if err != nil {
				return err
			}
			f, src, err := openFile(ctx, c.String(sourceFlagName), source.Options{Timeout: fetchTimeout(c), Retry: retry})
			if err != nil {
				return err
			}
			defer src.Close()
			defer f.Close()

			root, err := f.OpenGroup(c.String(groupFlagName))
			if err != nil {
				return err
			}
			fmt.Printf("%s: superblock v%d, %s\n", src.URI(), f.Version(), humanize.IBytes(f.Size()))
			return inspect(os.Stdout, f, root)
		},
	}
}

func inspect(w io.Writer, f *hdf5.File, root *hdf5.Group) error {
	base := strings.Count(strings.TrimSuffix(root.Path(), "/"), "/")
	return hdf5.Walk(root, func(v hdf5.Visit) error {
		depth := strings.Count(strings.TrimSuffix(v.Path, "/"), "/") - base
		indent := strings.Repeat("  ", depth)
		switch {
		case v.Err != nil:
			fmt.Fprintf(w, "%s%s  ERROR %v\n", indent, v.Path, v.Err)
		case v.Link.Kind == hdf5.LinkExternal:
			fmt.Fprintf(w, "%s%s -> %s:%s (external)\n", indent, v.Path, v.Link.File, v.Link.Target)
		default:
			switch o := v.Object.(type) {
			case *hdf5.Group:
				line := indent + strings.TrimSuffix(v.Path, "/") + "/"
				if v.Link.Kind == hdf5.LinkSoft {
					line += " -> " + v.Link.Target
				}
				fmt.Fprintf(w, "%s  attrs %v\n", line, o.Attrs())
			case *hdf5.Dataset:
				describeDataset(w, indent, v.Path, f, o)
			}
		}
		return nil
	})
}

func describeDataset(w io.Writer, indent, path string, f *hdf5.File, ds *hdf5.Dataset) {
	fmt.Fprintf(w, "%s%s  shape %v  %s\n", indent, path, ds.Shape(), ds.LayoutClass())
	indent += "    "

	if chunks := ds.ChunkShape(); chunks != nil {
		index, _ := ds.ChunkIndex()
		line := fmt.Sprintf("chunks %v  index %s", chunks, index)
		if stored, err := ds.Chunks(); err == nil {
			var size uint64
			for _, ch := range stored {
				size += ch.Size
			}
			line += fmt.Sprintf("  stored %d (%s)", len(stored), humanize.IBytes(size))
		}
		fmt.Fprintf(w, "%s%s\n", indent, line)
	}
	if pipeline := ds.Filters(); len(pipeline) > 0 {
		names := make([]string, len(pipeline))
		for i, fi := range pipeline {
			names[i] = fmt.Sprintf("%s%v", filter.Name(fi.ID), fi.ClientData)
		}
		fmt.Fprintf(w, "%sfilters %s\n", indent, strings.Join(names, ", "))
	}

	tr, err := h5zarr.Translate(f, ds)
	if err != nil {
		fmt.Fprintf(w, "%szarr ERROR %v\n", indent, err)
		return
	}
	line := fmt.Sprintf("zarr %s chunks %v", tr.Meta.DType, tr.Meta.Chunks)
	if tr.Meta.Compressor != nil {
		line += fmt.Sprintf("  compressor %s", tr.Meta.Compressor.ID())
	}
	for _, fc := range tr.Meta.Filters {
		line += fmt.Sprintf("  filter %s", fc.ID())
	}
	fmt.Fprintf(w, "%s%s\n", indent, line)
}
