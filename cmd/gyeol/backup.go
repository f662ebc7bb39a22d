package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/gyeol/internal/app"
	"github.com/maruel/gyeol/internal/portability"
	"golang.org/x/time/rate"
)

func cmdBackup(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("backup", "-o dir [-watch]")
	out := fs.String("o", "", "Directory receiving the archive")
	watch := fs.Bool("watch", false, "Keep running and write a new archive after every change")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return errUsage
	}
	if err := os.MkdirAll(*out, 0o750); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(*out, portability.ArchiveName)
	if err := backupOnce(ctx, p, dst); err != nil {
		return err
	}
	if !*watch {
		return nil
	}
	return watchDocument(ctx, p, rate.NewLimiter(rate.Every(p.Config().BackupInterval), 1), func() error {
		p.Reload(ctx)
		return backupOnce(ctx, p, dst)
	})
}

func backupOnce(ctx context.Context, p *app.Portfolio, dst string) error {
	var st portability.Stats
	err := writeFileAtomic(dst, func(w io.Writer) error {
		var err error
		st, err = p.ExportArchive(ctx, w)
		return err
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Backup written", "path", dst, "images", st.Images, "missing", st.Missing)
	return nil
}

// watchDocument calls fn each time the document file changes, at most as often
// as lim allows, until ctx is canceled. Changes arriving while throttled are
// coalesced into one call.
func watchDocument(ctx context.Context, p *app.Portfolio, lim *rate.Limiter, fn func() error) error {
	doc, err := p.DocumentPath()
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	// The document is replaced by rename, so watch its directory.
	if err := w.Add(filepath.Dir(doc)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Watching for changes", "path", doc)
	return runThrottled(ctx, lim, fn, func(pending chan<- struct{}, errc <-chan error) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-errc:
				return err
			case event, ok := <-w.Events:
				if !ok {
					return errors.New("watcher closed")
				}
				if filepath.Clean(event.Name) != filepath.Clean(doc) || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)) {
					continue
				}
				select {
				case pending <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return errors.New("watcher closed")
				}
				slog.WarnContext(ctx, "Error watching document", "err", err)
			}
		}
	})
}

// runThrottled runs fn once per signal sent on pending by loop, at most as
// often as lim allows. Signals arriving while fn runs or waits are coalesced.
// It returns loop's error once the worker has stopped, so fn never outlives
// the call.
func runThrottled(ctx context.Context, lim *rate.Limiter, fn func() error, loop func(pending chan<- struct{}, errc <-chan error) error) error {
	pending := make(chan struct{}, 1)
	errc := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range pending {
			if err := lim.Wait(ctx); err != nil {
				errc <- err
				return
			}
			if err := fn(); err != nil {
				slog.WarnContext(ctx, "Backup failed", "err", err)
			}
		}
	}()
	err := loop(pending, errc)
	close(pending)
	<-done
	return err
}
