// Command stacforge builds STAC-shaped catalogs from directories of
// georeferenced raster files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/example/stacforge/internal/core/config"
	"github.com/example/stacforge/internal/logger"
)

var Version = "dev"

const usage = `usage: stacforge <command> [flags]

commands:
  list-files     list the raster files a build would process
  list-metadata  extract and print per-file asset metadata
  list-items     map and print item descriptors
  build          build a single collection
  build-grouped  build one sub-collection per group
  postprocess    re-apply overrides to a built collection
  show           load and print a built collection
  serve          serve a built catalog over HTTP

run 'stacforge <command> -h' for command flags
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]
	args := os.Args[2:]

	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{
		Level:   cfg.LogLevel,
		Console: cfg.LogConsole,
		Command: command,
	}, os.Stderr)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "list-files":
		err = runListFiles(ctx, cfg, log, args)
	case "list-metadata":
		err = runListMetadata(ctx, cfg, log, args)
	case "list-items":
		err = runListItems(ctx, cfg, log, args)
	case "build":
		err = runBuild(ctx, cfg, log, args, false)
	case "build-grouped":
		err = runBuild(ctx, cfg, log, args, true)
	case "postprocess":
		err = runPostProcess(ctx, cfg, log, args)
	case "show":
		err = runShow(ctx, cfg, log, args)
	case "serve":
		err = runServe(ctx, cfg, log, args)
	case "version":
		fmt.Println(Version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", "command", command, "err", err.Error())
		os.Exit(1)
	}
}
