package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/shape"
	"github.com/teranos/plugcfg/snapshot"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-resolve whenever config files or plugins change",
		Long: `Watch the store file, the read-only files and the plugin directories, and
re-resolve after every change. Changed option paths are printed; a change
that breaks resolution prints its diagnostics and the last good snapshot
stays current.

Stop with Ctrl+C.`,
		Args: argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			w, err := layer.NewWatcher(
				layer.WithDebounce(debounce),
				layer.WithWatcherLogger(logger.ComponentLogger("watcher")),
			)
			if err != nil {
				return err
			}
			defer w.Stop()

			if err := w.AddFile(app.Store.Path()); err != nil {
				return err
			}
			for _, f := range app.Config.Store.Readonly {
				if _, err := os.Stat(f); err != nil {
					continue
				}
				if err := w.AddFile(f); err != nil {
					return err
				}
			}
			for _, dir := range app.Config.Plugins.Paths {
				if _, err := os.Stat(dir); err != nil {
					continue
				}
				if err := w.AddDir(dir); err != nil {
					return err
				}
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			current, err := app.Resolve(nil)
			if err != nil {
				ReportError(errOut, err)
			}
			pterm.Info.WithWriter(out).Printfln("Watching %s, %d read-only file(s) and %d plugin dir(s)",
				app.Store.Path(), len(app.Config.Store.Readonly), len(app.Config.Plugins.Paths))

			var mu sync.Mutex
			w.OnReload(func(changed []string) error {
				mu.Lock()
				defer mu.Unlock()
				next, err := opts.reload()
				if err != nil {
					ReportError(errOut, err)
					return err
				}
				reportChanges(out, changed, current, next)
				current = next
				return nil
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w.Run(ctx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", layer.DefaultDebounce, "Wait this long after the last change before reloading")
	return cmd
}

// reload rescans plugins and resolves again.
func (o *globalOptions) reload() (*snapshot.Snapshot, error) {
	app, err := o.setup()
	if err != nil {
		return nil, err
	}
	return app.Resolve(nil)
}

func reportChanges(out io.Writer, files []string, prev, next *snapshot.Snapshot) {
	paths := ChangedPaths(prev, next)
	if len(paths) == 0 {
		pterm.Info.WithWriter(out).Printfln("Reloaded after change to %d file(s), no option changed", len(files))
		return
	}
	pterm.Success.WithWriter(out).Printfln("Reloaded snapshot %s, %d option(s) changed", next.ID(), len(paths))
	for _, p := range paths {
		fmt.Fprintf(out, "  %s\n", p)
	}
}

// ChangedPaths lists the option paths whose values differ between two
// snapshots, including plugins present in only one of them. A nil snapshot
// has no options.
func ChangedPaths(prev, next *snapshot.Snapshot) []string {
	values := func(s *snapshot.Snapshot) map[string]any {
		out := make(map[string]any)
		if s == nil {
			return out
		}
		for _, id := range s.Plugins() {
			items, err := s.Items(id)
			if err != nil {
				continue
			}
			for _, item := range items {
				out[shape.JoinPath(id, item.Key)] = item.Value
			}
		}
		return out
	}
	before, after := values(prev), values(next)

	var changed []string
	for path, v := range after {
		old, ok := before[path]
		if !ok || !shape.Equal(old, v) {
			changed = append(changed, path)
		}
	}
	for path := range before {
		if _, ok := after[path]; !ok {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed
}
