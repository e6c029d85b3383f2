package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/server"
	"github.com/example/stacforge/internal/store"
)

func runServe(ctx context.Context, cfg config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("serve needs exactly one catalog directory or bucket URL")
	}

	cat, err := store.Open(ctx, bucketURL(fs.Arg(0)))
	if err != nil {
		return err
	}
	defer cat.Close()

	log.Info("serving catalog", "addr", *addr, "catalog", fs.Arg(0), "version", Version)
	return server.Run(ctx, *addr, log, cat)
}
