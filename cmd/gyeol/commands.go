package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maruel/gyeol/internal/app"
	"github.com/maruel/gyeol/internal/config"
	"github.com/maruel/gyeol/internal/imageref"
	"github.com/maruel/gyeol/internal/portability"
	"github.com/maruel/gyeol/internal/portfolio"
	"github.com/maruel/gyeol/internal/storage"
)

type command func(ctx context.Context, cfg *config.Config, args []string) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"show":    withPortfolio(cmdShow),
		"export":  withPortfolio(cmdExport),
		"import":  withPortfolio(cmdImport),
		"reset":   withPortfolio(cmdReset),
		"log":     withPortfolio(cmdLog),
		"restore": withPortfolio(cmdRestore),
		"backup":  withPortfolio(cmdBackup),
	}
}

func withPortfolio(fn func(ctx context.Context, p *app.Portfolio, args []string) error) command {
	return func(ctx context.Context, cfg *config.Config, args []string) (err error) {
		p, err := app.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, p.Close())
		}()
		return fn(ctx, p, args)
	}
}

func newFlagSet(name, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: gyeol %s %s\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string, nargs int) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != nargs {
		fs.Usage()
		return errUsage
	}
	return nil
}

func cmdShow(ctx context.Context, p *app.Portfolio, args []string) error {
	if err := parse(newFlagSet("show", ""), args, 0); err != nil {
		return err
	}
	d := p.Data()
	keys, err := p.ImageKeys(ctx)
	if err != nil {
		return err
	}
	stored := map[string]bool{}
	for _, k := range keys {
		stored[k] = true
	}
	kinds := map[imageref.Kind]int{}
	dangling := 0
	for _, ref := range d.ImageRefs() {
		k := imageref.Classify(ref)
		kinds[k]++
		if k == imageref.Stored && !stored[ref] {
			dangling++
		}
	}
	path, _ := p.DocumentPath()
	fmt.Printf("Document:   %s\n", path)
	fmt.Printf("Name:       %s\n", d.Profile.Name)
	fmt.Printf("Worlds:     %d\n", len(d.Worlds))
	for i := range d.Worlds {
		w := &d.Worlds[i]
		fmt.Printf("  %-24s %d characters, %d creatures\n", w.Name, len(d.WorldCharacters(w)), len(d.WorldCreatures(w)))
	}
	fmt.Printf("Characters: %d\n", len(d.Characters))
	fmt.Printf("Creatures:  %d\n", len(d.Creatures))
	fmt.Printf("Images:     %d stored, %d referenced (%d stored, %d URL, %d data URI, %d other), %d missing\n",
		len(keys), len(d.ImageRefs()), kinds[imageref.Stored], kinds[imageref.URL], kinds[imageref.DataURI], kinds[imageref.Literal], dangling)
	return nil
}

func cmdExport(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("export", "[-format zip|json] [-o path]")
	format := fs.String("format", string(portability.FormatArchive), "Export format (zip, json)")
	out := fs.String("o", "", "Output file; - for stdout; defaults to the standard file name")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	f := portability.Format(*format)
	if err := f.Validate(); err != nil {
		return err
	}
	if *out == "-" {
		_, err := p.Export(ctx, f, os.Stdout)
		return err
	}
	if *out == "" {
		*out = f.FileName()
	}
	var st portability.Stats
	err := writeFileAtomic(*out, func(w io.Writer) error {
		var err error
		st, err = p.Export(ctx, f, w)
		return err
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported", "path", *out, "images", st.Images, "missing", st.Missing, "failed", st.Failed)
	return nil
}

func cmdImport(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("import", "<file.zip|file.json>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	name := fs.Arg(0)
	f, err := os.Open(name) //nolint:gosec // G304: user-provided path
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	st, err := p.Import(ctx, name, f)
	if errors.Is(err, storage.ErrNotPersisted) {
		return fmt.Errorf("imported %s (%d images stored) but could not save the document: %w", name, st.Images, err)
	}
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", name, err)
	}
	slog.InfoContext(ctx, "Imported", "path", name, "images", st.Images)
	return nil
}

func cmdReset(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("reset", "-yes")
	yes := fs.Bool("yes", false, "Confirm deleting every image and the whole document")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	if !*yes {
		return errors.New("reset deletes all data; rerun with -yes to confirm")
	}
	if err := p.Reset(ctx); err != nil {
		if errors.Is(err, storage.ErrNotPersisted) {
			return fmt.Errorf("images deleted but the default document could not be saved: %w", err)
		}
		return err
	}
	slog.InfoContext(ctx, "Reset portfolio")
	return nil
}

func cmdSchema(args []string) error {
	if err := parse(newFlagSet("schema", ""), args, 0); err != nil {
		return err
	}
	b, err := portfolio.Schema()
	if err != nil {
		return err
	}
	_, err = fmt.Printf("%s\n", b)
	return err
}

func cmdLog(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("log", "[-n N]")
	n := fs.Int("n", 20, "Number of revisions")
	if err := parse(fs, args, 0); err != nil {
		return err
	}
	commits, err := p.History(ctx, *n)
	if err != nil {
		return err
	}
	for _, c := range commits {
		fmt.Printf("%.8s  %s  %s\n", c.Hash, c.Date.Local().Format("2006-01-02 15:04:05"), c.Message)
	}
	return nil
}

func cmdRestore(ctx context.Context, p *app.Portfolio, args []string) error {
	fs := newFlagSet("restore", "<hash>")
	if err := parse(fs, args, 1); err != nil {
		return err
	}
	if err := p.Restore(ctx, fs.Arg(0)); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Restored", "revision", fs.Arg(0))
	return nil
}

// writeFileAtomic writes path through a temporary file in the same directory.
func writeFileAtomic(path string, fn func(w io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	if err := fn(f); err != nil {
		return errors.Join(err, f.Close(), os.Remove(tmp))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close %s: %w", tmp, err), os.Remove(tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Join(fmt.Errorf("failed to write %s: %w", path, err), os.Remove(tmp))
	}
	return nil
}
