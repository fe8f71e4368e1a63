package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/logger"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

var (
	verbose   bool
	logLevel  string
	logFormat string

	ignoreChecksums bool

	compressionLevel int
	noDataChecksum   bool
	upconvertIndices bool

	overwrite bool
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "print extra info about what the tool is doing",
			Destination: &verbose,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func readFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "ignore-checksums",
			Usage:       "try to process files even if checksums are wrong",
			Destination: &ignoreChecksums,
		},
	}
}

func writeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "level",
			Aliases:     []string{"l"},
			Usage:       "zstd compression level (default: max)",
			Value:       ima.MaxCompressionLevel,
			Destination: &compressionLevel,
		},
		&cli.BoolFlag{
			Name:        "no-data-checksum",
			Usage:       "do not write data checksum into file (faster)",
			Destination: &noDataChecksum,
		},
		&cli.BoolFlag{
			Name:        "upconvert-indices",
			Usage:       "convert index data from U16 to U32 if needed",
			Destination: &upconvertIndices,
		},
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "overwrite",
			Usage:       "overwrite output file if it exists",
			Destination: &overwrite,
		},
	}
}

func readerSettings() ima.ReaderSettings {
	return ima.ReaderSettings{
		VerifyMetadataChecksum: !ignoreChecksums,
		VerifyDataChecksum:     !ignoreChecksums,
	}
}

func writerSettings() ima.WriterSettings {
	return ima.WriterSettings{
		UpconvertIndices:  upconvertIndices,
		WriteDataChecksum: !noDataChecksum,
		CompressionLevel:  compressionLevel,
	}
}

// cliLogger builds a logger from the logging flags and config defaults.
func cliLogger(c *cli.Command, cfg Config) logger.Logger {
	applyLoggingConfig(c, cfg)
	level := logger.ParseLevel(logLevel)
	if verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = os.Stderr
	switch logFormat {
	case "json":
		return logger.JSON(w, level)
	case "text":
		return logger.Text(w, level)
	default:
		return logger.Pretty(w, level)
	}
}
