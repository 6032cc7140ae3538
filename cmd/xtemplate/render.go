package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/xtemplate-go/pkg/xtemplate"
)

type renderFlags struct {
	inputFlags
	output string
	watch  bool
}

func newRenderCmd(g *globalFlags) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render [TEMPLATE]",
		Short: "Render a template to stdout or a file",
		Example: `  xtemplate render page.tmpl -d data.yaml -o page.html
  xtemplate render -t 'Hello {{name}}' --set name=World`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd.Context(), cmd.OutOrStdout(), g, f, args)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Write the result to this file (atomically) instead of stdout")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Re-render whenever the template or data file changes")
	return cmd
}

func runRender(ctx context.Context, stdout io.Writer, g *globalFlags, f *renderFlags, args []string) error {
	path, err := f.templatePath(args)
	if err != nil {
		return err
	}
	if f.watch && (path == "" || path == "-") {
		return errors.New("--watch needs a template file")
	}
	if f.watch && f.dataFile == "-" {
		return errors.New("--watch cannot read data from stdin")
	}

	engine := g.newEngine()
	logger := g.logger()
	once := func() error {
		name, source, err := f.readTemplate(path)
		if err != nil {
			return err
		}
		data, err := f.loadData()
		if err != nil {
			return err
		}
		tmpl, err := engine.Compile(source, &xtemplate.Options{Name: name})
		if err != nil {
			return err
		}
		out, err := tmpl.Render(data)
		if err != nil {
			return err
		}
		return writeOutput(stdout, f.output, out)
	}

	if err := once(); err != nil && !f.watch {
		return err
	} else if err != nil {
		logger.Error("render failed", "error", err)
	}
	if !f.watch {
		return nil
	}

	watched := []string{path}
	if f.dataFile != "" {
		watched = append(watched, f.dataFile)
	}
	return watchFiles(ctx, watched, func() {
		if err := once(); err != nil {
			logger.Error("render failed", "error", err)
			return
		}
		logger.Info("rendered", "template", path)
	})
}

// writeOutput writes out to path via a temporary file and rename, or to
// stdout when path is empty.
func writeOutput(stdout io.Writer, path, out string) error {
	if path == "" {
		_, err := io.WriteString(stdout, out)
		return err
	}
	if err := atomic.WriteFile(path, strings.NewReader(out)); err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return nil
}

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 50 * time.Millisecond

// watchFiles calls onChange after any of files is written, created or
// renamed, until ctx is done. Directories are watched rather than the files
// themselves so that editors that replace files on save are followed.
func watchFiles(ctx context.Context, files []string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating file watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("error watching %s: %w", dir, err)
		}
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !targets[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(watchDebounce)
			}
		case <-debounce:
			debounce = nil
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("file watcher: %w", err)
		}
	}
}
