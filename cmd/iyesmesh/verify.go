package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/logger"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Try decoding the file to check for errors",
		ArgsUsage: "<file>",
		Flags:     readFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("no input file provided")
			}
			log := cliLogger(c, LoadConfig())

			settings := ima.DefaultReaderSettings()
			err := tryVerify(path, settings, log)
			if err != nil && ignoreChecksums {
				log.Warn("verification failed, trying again without checksum verification", "error", err)
				settings.VerifyMetadataChecksum = false
				settings.VerifyDataChecksum = false
				err = tryVerify(path, settings, log)
			}
			return err
		},
	}
}

func tryVerify(path string, settings ima.ReaderSettings, log logger.Logger) error {
	f, err := ima.OpenFile(path)
	if err != nil {
		return fmt.Errorf("could not open input file: %w", err)
	}
	defer f.Close()

	rd, err := ima.OpenWithSettings(settings, f.Reader())
	if err != nil {
		return fmt.Errorf("cannot decode file metadata: %w", err)
	}
	log.Debug("file metadata OK")

	withData, err := rd.ReadAllData()
	if err != nil {
		return fmt.Errorf("cannot decode file data: %w", err)
	}
	log.Debug("file data successfully decoded")

	flat, err := withData.IntoFlatBuffers()
	if err != nil {
		return fmt.Errorf("cannot parse file data as flat buffers: %w", err)
	}
	log.Debug("file data successfully parsed as flat buffers")

	if _, err := withData.IntoSplitMeshes(flat); err != nil {
		return fmt.Errorf("cannot parse file data as split meshes: %w", err)
	}
	log.Debug("file data successfully parsed as split meshes")
	return nil
}
