package commands

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/schema"
	"github.com/teranos/plugcfg/shape"
)

func newLintCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file...]",
		Short: "Check config files against the plugins' schemas",
		Long: `Check configuration files against the JSON Schema of every plugin they
configure, then resolve the full layer stack.

Without arguments the read-only files and the store file are checked.
Plugin discovery problems are reported too.

Exit status is 3 when the configuration does not resolve and 1 when any
other problem was found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			files := args
			if len(files) == 0 {
				for _, f := range append(append([]string(nil), app.Config.Store.Readonly...), app.Store.Path()) {
					if _, err := os.Stat(f); err == nil {
						files = append(files, f)
					}
				}
			}

			var problems []string
			for _, p := range app.Problems {
				problems = append(problems, p.Error())
			}
			for _, f := range files {
				for _, p := range lintFile(app, f) {
					problems = append(problems, f+": "+p)
				}
			}
			for _, p := range problems {
				pterm.Error.WithWriter(out).Println(p)
			}

			if _, err := app.Resolve(nil); err != nil {
				return err
			}
			if len(problems) > 0 {
				return &ExitError{Code: ExitFailure, Err: errors.Newf("%d problem(s) found", len(problems))}
			}
			pterm.Success.WithWriter(out).Printfln("%d file(s) and %d plugin(s) checked, no problems found", len(files), app.Registry.Len())
			return nil
		},
	}
}

// lintFile validates one file's plugin tables against their schemas.
func lintFile(app *App, path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{err.Error()}
	}
	doc, err := layer.ParseDocument(layer.FormatOf(path), data)
	if err != nil {
		return []string{err.Error()}
	}
	if _, err := layer.DocumentEntries(doc); err != nil {
		return []string{err.Error()}
	}

	var problems []string
	for _, p := range doc.Pairs() {
		if p.Key == layer.SchemaVersionKey {
			continue
		}
		d, err := app.Registry.Get(p.Key)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: unknown plugin", p.Key))
			continue
		}
		table, ok := p.Value.(*shape.Map)
		if !ok {
			continue
		}
		if err := schema.ValidateDocument(d.ID, d.Record(), table); err != nil {
			for _, fe := range errors.AsFieldErrors(err) {
				problems = append(problems, fe.Error())
			}
		}
	}
	return problems
}
