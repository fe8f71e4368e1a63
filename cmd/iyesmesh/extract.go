package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func extractUserDataCmd() *cli.Command {
	flags := append(readFlags(), outputFlags()...)

	return &cli.Command{
		Name:      "extract-user-data",
		Usage:     "Decode the user data from a file",
		ArgsUsage: "<in-file> [out-file]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			inPath := c.Args().First()
			if inPath == "" {
				return errors.New("no input file provided")
			}
			outPath := c.Args().Get(1)

			f, err := ima.OpenFile(inPath)
			if err != nil {
				return fmt.Errorf("could not open input file: %w", err)
			}
			defer f.Close()

			rd, err := ima.OpenWithSettings(readerSettings(), f.Reader())
			if err != nil {
				return fmt.Errorf("cannot decode file metadata: %w", err)
			}
			data, err := rd.ReadUserData()
			if err != nil {
				return fmt.Errorf("cannot decode user data: %w", err)
			}

			if outPath == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			out, err := createOutput(outPath, overwrite)
			if err != nil {
				return err
			}
			if _, err := out.Write(data); err != nil {
				out.Close()
				return fmt.Errorf("could not write output: %w", err)
			}
			return out.Close()
		},
	}
}
