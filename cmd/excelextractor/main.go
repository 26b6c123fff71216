package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/five82/excelextractor/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional)")
	prefsPath := flag.String("prefs", "", "override prefs path (optional)")
	outputDir := flag.String("o", "", "download directory (optional, defaults to download_dir)")
	outputName := flag.String("name", "", "output spreadsheet name (optional)")
	keepRemote := flag.Bool("keep-remote", false, "headless: do not download, record as not downloaded")
	pollSeconds := flag.Int("poll", 0, "background refresh interval in seconds (optional, defaults to 30s)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [image ...]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "With image paths, submits them in order and exits; otherwise starts the TUI.")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		OutputDir:  *outputDir,
		OutputName: *outputName,
		Files:      flag.Args(),
		KeepRemote: *keepRemote,
	}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = time.Duration(poll) * time.Second
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "excelextractor: %v\n", err)
		return 1
	}
	return 0
}
