package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/version"
	"github.com/iyesgames/iyesmesh/pkg/ima"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			info := version.Resolve()
			fmt.Printf("version:        %s\n", info.Version)
			if info.Commit != "" {
				fmt.Printf("commit:         %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				fmt.Printf("build time:     %s\n", info.BuildTime)
			}
			fmt.Printf("format version: %d\n", ima.FormatVersion)
			return nil
		},
	}
}
