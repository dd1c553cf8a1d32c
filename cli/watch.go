package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce collapses the bursts of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*CompileOptions
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{CompileOptions: &CompileOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "watch <query-file>",
		Short: "Recompile a query file every time it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, opts, cmd, args[0], nil)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "target dialect (default: from opsql.ini)")
	cmd.Flags().BoolVar(&opts.Literal, "literal", false, "inline literals instead of bound parameters")

	return cmd
}

// runWatch compiles path once, then again after every change until ctx is
// done. Compile errors are reported and watching continues. ready, if set,
// is called once the watcher is in place.
func runWatch(ctx context.Context, opts *WatchOptions, cmd *cobra.Command, path string, ready func()) error {
	p := opts.printer(cmd)
	recompile := func() {
		if err := runCompile(opts.CompileOptions, cmd, path); err != nil {
			p.Errorf("%v", err)
		}
	}

	recompile()
	return watchFile(ctx, path, func() {
		p.Infof("-- watching %s", path)
		if ready != nil {
			ready()
		}
	}, func() {
		p.Infof("-- %s changed at %s", filepath.Base(path), time.Now().Format(time.TimeOnly))
		recompile()
	})
}

// watchFile calls changed after writes to path settle. The directory is
// watched so that editors replacing the file are noticed.
func watchFile(ctx context.Context, path string, ready, changed func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	ready()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			fire = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		case <-fire:
			fire = nil
			changed()
		}
	}
}
