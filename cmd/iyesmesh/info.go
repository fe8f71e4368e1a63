package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/httpapi"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func infoCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "info",
		Usage:     "Show general info about the file",
		ArgsUsage: "<file>",
		Flags: append(readFlags(),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print machine-readable JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("no input file provided")
			}

			f, err := ima.OpenFile(path)
			if err != nil {
				return fmt.Errorf("could not open input file: %w", err)
			}
			defer f.Close()

			rd, err := ima.OpenWithSettings(readerSettings(), f.Reader())
			if err != nil {
				return fmt.Errorf("cannot decode file metadata: %w", err)
			}

			info := httpapi.Describe(rd.Header(), rd.Descriptor())
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInfo(info)
			return nil
		},
	}
}

func printInfo(info httpapi.FileInfo) {
	fmt.Printf("format version:    %d\n", info.Version)
	fmt.Printf("metadata checksum: %#016x\n", info.MetadataChecksum)
	if info.DataChecksum != 0 {
		fmt.Printf("data checksum:     %#016x\n", info.DataChecksum)
	} else {
		fmt.Printf("data checksum:     (absent)\n")
	}
	fmt.Printf("vertices:          %d\n", info.NVertices)
	fmt.Printf("user data:         %d bytes\n", info.UserDataLen)
	if info.Indices != nil {
		fmt.Printf("indices:           %d (%s)\n", info.Indices.NIndices, info.Indices.Format)
	} else {
		fmt.Printf("indices:           (none)\n")
	}
	fmt.Printf("attributes:\n")
	for _, attr := range info.Attributes {
		fmt.Printf("  %-12s %s\n", attr.Usage, attr.Format)
	}
	fmt.Printf("meshes:\n")
	for i, m := range info.Meshes {
		fmt.Printf("  [%d] first=%d count=%d base_vertex=%d\n", i, m.First, m.Count, m.BaseVertex)
	}
}
