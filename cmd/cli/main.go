package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scd-extractor/internal/config"
	"scd-extractor/internal/extractor"
	"scd-extractor/internal/ioformats"
	"scd-extractor/pkg/logger"
)

type options struct {
	configPath string
	dir        string
	list       string
	workers    int
	format     string
	stdout     bool
	verbose    bool
}

type app struct {
	opts options
	log  *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scd-extract [file]",
		Short: "Extract function blocks from Visio SCD drawings",
		Long: `Extracts every function block from a Visio SCD drawing (.vsdx) and writes
a table with the columns Sheet, Function-block, Tag and Description next to
the drawing, using the same name with a .csv extension.

Without arguments every .vsdx file in the working directory (or --dir) is
processed. The extension may be left out of the file argument.`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.log == nil {
				a.log = logger.NewLevel(a.opts.verbose)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&a.opts.configPath, "config", "", "YAML config file (default $"+config.EnvPath+")")
	f.StringVar(&a.opts.dir, "dir", ".", "directory scanned when no file is given")
	f.StringVar(&a.opts.list, "list", "", "CSV (with 'path' column) or NDJSON file listing drawings to process")
	f.IntVar(&a.opts.workers, "workers", 1, "page parts parsed concurrently per drawing")
	f.StringVar(&a.opts.format, "format", "table", "output format: table or ndjson")
	f.BoolVar(&a.opts.stdout, "stdout", false, "write results to stdout instead of next to each drawing")
	f.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = a.opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if a.opts.format != "table" && a.opts.format != "ndjson" {
		return fmt.Errorf("unknown format %q (want table or ndjson)", a.opts.format)
	}

	pipe, err := extractor.NewPipeline(cfg, a.log)
	if err != nil {
		return err
	}

	var files []string
	switch {
	case len(args) > 1:
		fmt.Fprintln(out, "You have entered too many arguments.")
		fmt.Fprintln(out, "You entered the following arguments: "+strings.Join(args, ", "))
		return nil
	case len(args) == 1:
		name, ok := resolveInput(args[0], cfg.InputExt)
		if !ok {
			fmt.Fprintln(out, args[0]+" is not a file.")
			fmt.Fprintln(out, "Please type in the filename, or run without arguments to process every drawing in the folder.")
			return nil
		}
		files = []string{name}
	case a.opts.list != "":
		files, err = ioformats.ReadPaths(a.opts.list, cfg.InputExt)
		if err != nil {
			return fmt.Errorf("read list: %w", err)
		}
	default:
		files, err = scanDir(a.opts.dir, cfg.InputExt)
		if err != nil {
			return err
		}
	}

	if len(files) == 0 {
		a.log.Infof("no %s files found in %s", cfg.InputExt, a.opts.dir)
		return nil
	}

	progress := out
	if a.opts.stdout {
		progress = errOut
	}

	var failed int
	for _, f := range files {
		fmt.Fprintln(progress, "Parsing "+f)
		if err := a.process(cmd.Context(), pipe, cfg, f, out); err != nil {
			failed++
			fmt.Fprintf(errOut, "%s: %v\n", f, err)
			a.log.Errorf("extraction failed for %s: %v", f, err)
			if errors.Is(err, context.Canceled) {
				break
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d drawings failed", failed, len(files))
	}
	return nil
}

// process extracts one drawing. Nothing is written unless extraction succeeds.
func (a *app) process(ctx context.Context, pipe *extractor.Pipeline, cfg config.Config, path string, out io.Writer) error {
	res, err := pipe.Run(ctx, path)
	if err != nil {
		return err
	}

	write := func(w io.Writer) error {
		if a.opts.format == "ndjson" {
			return ioformats.WriteNDJSON(w, res.Records)
		}
		return ioformats.WriteTable(w, cfg.Delimiter, res.Records)
	}
	if a.opts.stdout {
		return write(out)
	}

	var target string
	if a.opts.format == "ndjson" {
		target = ioformats.OutputPath(path, ".ndjson")
		err = ioformats.WriteFileAtomic(target, write)
	} else {
		target = ioformats.OutputPath(path, cfg.OutputExt)
		err = ioformats.WriteTableFile(target, cfg.Delimiter, res.Records)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	a.log.Infof("wrote %d records to %s", len(res.Records), target)
	return nil
}

// resolveInput appends ext when missing and checks the result is a regular
// file.
func resolveInput(arg, ext string) (string, bool) {
	name := ioformats.WithExt(arg, ext)
	fi, err := os.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		return "", false
	}
	return name, true
}

// scanDir lists the drawings in dir in name order. Visio's "~$" owner files
// are skipped.
func scanDir(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, "~$") {
			continue
		}
		if strings.HasSuffix(strings.ToLower(name), strings.ToLower(ext)) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}
