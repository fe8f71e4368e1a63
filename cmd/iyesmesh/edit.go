package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func editCmd() *cli.Command {
	var (
		userData     string
		userDataRaw  bool
		dropUserData bool
		dropMeshes   string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-data",
			Aliases:     []string{"u"},
			Usage:       "replace user data from file (\"-\" for stdin); container files are sniffed and their user data extracted",
			Destination: &userData,
		},
		&cli.BoolFlag{
			Name:        "user-data-force-raw",
			Usage:       "do not try to parse the user data file as a container file",
			Destination: &userDataRaw,
		},
		&cli.BoolFlag{
			Name:        "drop-user-data",
			Aliases:     []string{"D"},
			Usage:       "delete existing user data",
			Destination: &dropUserData,
		},
		&cli.StringFlag{
			Name:        "drop-mesh",
			Aliases:     []string{"d"},
			Usage:       "delete specific meshes (comma-separated indices)",
			Destination: &dropMeshes,
		},
	}
	flags = append(flags, readFlags()...)
	flags = append(flags, writeFlags()...)
	flags = append(flags, outputFlags()...)

	return &cli.Command{
		Name:      "edit",
		Usage:     "Load a file, make some changes, save the changes",
		ArgsUsage: "<in-file> [out-file]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			inPath := c.Args().First()
			if inPath == "" {
				return errors.New("no input file provided")
			}
			outPath := c.Args().Get(1)

			cfg := LoadConfig()
			applyWriteConfig(c, cfg)

			drop, err := parseMeshIndices(dropMeshes)
			if err != nil {
				return err
			}

			w := ima.NewWriterWithSettings(writerSettings())
			if c.IsSet("user-data") {
				data, err := loadUserData(userData, readerSettings(), userDataRaw)
				if err != nil {
					return err
				}
				w.SetUserData(data)
			}

			flat, meshes, err := decodeMeshes(inPath, readerSettings())
			if err != nil {
				return err
			}

			// keep the original user data unless replaced or dropped
			if !c.IsSet("user-data") {
				if dropUserData || flat.UserData == nil {
					w.ClearUserData()
				} else {
					w.SetUserData(flat.UserData)
				}
			}

			for i, m := range meshes {
				if drop[i] {
					continue
				}
				if err := w.AddMesh(m); err != nil {
					return fmt.Errorf("cannot use mesh %d for output: %w", i, err)
				}
			}

			// with no explicit output path, overwrite the input in place
			if outPath == "" {
				return writeContainer(w, inPath, true)
			}
			return writeContainer(w, outPath, overwrite)
		},
	}
}

func parseMeshIndices(s string) (map[int]bool, error) {
	drop := make(map[int]bool)
	if s == "" {
		return drop, nil
	}
	for _, part := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("bad mesh index %q", part)
		}
		drop[idx] = true
	}
	return drop, nil
}
