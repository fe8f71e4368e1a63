package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/objconv"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func fromObjCmd() *cli.Command {
	var (
		outPath     string
		userData    string
		userDataRaw bool
		appendTo    bool
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
		&cli.BoolFlag{
			Name:        "append",
			Aliases:     []string{"a"},
			Usage:       "if the output file exists, add the new meshes to it",
			Destination: &appendTo,
		},
	}
	flags = append(flags, readFlags()...)
	flags = append(flags, writeFlags()...)
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:      "from-obj",
		Usage:     "Import from Wavefront OBJ format",
		ArgsUsage: "<in.obj...>",
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

			converted := make([]*objconv.Mesh, 0, len(inPaths))
			for _, inPath := range inPaths {
				f, err := os.Open(inPath)
				if err != nil {
					return fmt.Errorf("could not open input OBJ file: %w", err)
				}
				m, err := objconv.Parse(f)
				f.Close()
				if err != nil {
					return fmt.Errorf("%s: %w", inPath, err)
				}
				converted = append(converted, m)
			}

			if appendTo {
				_, meshes, err := decodeMeshes(outPath, readerSettings())
				if err != nil {
					return fmt.Errorf("cannot decode append file: %w", err)
				}
				for i, m := range meshes {
					if err := w.AddMesh(m); err != nil {
						return fmt.Errorf("cannot use old mesh %d for output: %w", i, err)
					}
				}
			}

			for i, m := range converted {
				if err := w.AddMesh(m.MeshData()); err != nil {
					return fmt.Errorf("%s: new mesh is incompatible: %w", inPaths[i], err)
				}
			}

			return writeContainer(w, outPath, overwrite || appendTo)
		},
	}
}
