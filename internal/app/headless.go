package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/five82/excelextractor/internal/config"
	"github.com/five82/excelextractor/internal/selection"
	"github.com/five82/excelextractor/internal/submit"
	"github.com/five82/excelextractor/internal/workbook"
)

// runHeadless submits opts.Files in the given order and either downloads the
// merged workbook or records it as left on the server.
func (e *env) runHeadless(ctx context.Context, opts Options) error {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	if err := e.login(ctx); err != nil {
		return err
	}
	if e.authenticated() {
		e.warmUp(ctx)
	}

	batch := make([]selection.Candidate, 0, len(opts.Files))
	for _, path := range opts.Files {
		c, err := selection.FromPath(path)
		if err != nil {
			return err
		}
		batch = append(batch, c)
	}

	added, err := e.ctrl.AddFiles(batch)
	if err != nil {
		return err
	}
	if skipped := len(batch) - added; skipped > 0 {
		fmt.Fprintf(out, "skipped %d unsupported file(s)\n", skipped)
	}

	if err := e.ctrl.Submit(ctx); err != nil {
		var subErr *submit.Error
		if errors.As(err, &subErr) && subErr.Kind == submit.KindAuth {
			return fmt.Errorf("%s (set %s and %s, or %s)", subErr.Message, config.EnvUser, config.EnvPassword, config.EnvToken)
		}
		return err
	}

	snap := e.ctrl.Snapshot()
	fmt.Fprintln(out, snap.Result.Message)
	fmt.Fprintf(out, "monthly API count: %d\n", snap.Result.MonthlyCount)

	if opts.KeepRemote {
		fmt.Fprintf(out, "left on server: %s\n", snap.Result.FileURL)
		return e.ctrl.Abandon(ctx)
	}

	path, err := e.ctrl.Download(ctx, e.cfg.DownloadDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s\n", path)
	return printSummary(out, path)
}

func printSummary(out io.Writer, path string) error {
	summary, err := workbook.Inspect(path)
	if err != nil {
		// The file is saved; an unreadable workbook is reported, not fatal.
		fmt.Fprintf(out, "could not inspect workbook: %v\n", err)
		return nil
	}
	fmt.Fprintln(out, summary.String())
	return nil
}
