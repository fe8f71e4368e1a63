package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/iyesgames/iyesmesh/internal/httpapi"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		dir         string
		readTimeout time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "dir",
			Usage:       "directory of container files to serve",
			Value:       ".",
			Destination: &dir,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	}
	flags = append(flags, readFlags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve read-only container inspection over HTTP",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := LoadConfig()
			applyServeConfig(c, cfg, &addr, &dir)
			log := cliLogger(c, cfg)

			store := httpapi.NewStore(dir)
			if err := store.Scan(); err != nil {
				return err
			}
			server := httpapi.NewServer(store, readerSettings(), log)

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "dir", dir, "files", len(store.List()))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
