package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func mergeCmd() *cli.Command {
	var (
		outPath     string
		userData    string
		userDataRaw bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "path where to save the output file",
			Required:    true,
			Destination: &outPath,
		},
		&cli.StringFlag{
			Name:        "user-data",
			Aliases:     []string{"u"},
			Usage:       "file to load user data from (\"-\" for stdin); container files are sniffed and their user data extracted",
			Destination: &userData,
		},
		&cli.BoolFlag{
			Name:        "user-data-force-raw",
			Usage:       "do not try to parse the user data file as a container file",
			Destination: &userDataRaw,
		},
	}
	flags = append(flags, readFlags()...)
	flags = append(flags, writeFlags()...)
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:      "merge",
		Usage:     "Load several files, save a file with their combined meshes",
		ArgsUsage: "<in-file...>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			inPaths := c.Args().Slice()
			if len(inPaths) == 0 {
				return errors.New("no input files provided")
			}

			applyWriteConfig(c, LoadConfig())

			w := ima.NewWriterWithSettings(writerSettings())
			if c.IsSet("user-data") {
				data, err := loadUserData(userData, readerSettings(), userDataRaw)
				if err != nil {
					return err
				}
				w.SetUserData(data)
			}

			for _, inPath := range inPaths {
				_, meshes, err := decodeMeshes(inPath, readerSettings())
				if err != nil {
					return fmt.Errorf("%s: %w", inPath, err)
				}
				for i, m := range meshes {
					if err := w.AddMesh(m); err != nil {
						return fmt.Errorf("%s: cannot use mesh %d for output: %w", inPath, i, err)
					}
				}
			}

			return writeContainer(w, outPath, overwrite)
		},
	}
}
