package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/layer"
	"github.com/teranos/plugcfg/shape"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var (
		format    string
		overrides []string
		only      string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Long: `Resolve every discovered plugin and print the result.

Secret options are printed as their handles ("secret=<ref>"), never as
plaintext. Use "get --reveal" to read one secret.`,
		Args: argsExactly(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			app, err := opts.setup()
			if err != nil {
				return err
			}
			snap, err := app.Resolve(overrides)
			if err != nil {
				return err
			}

			var doc *shape.Map
			if only != "" {
				m, err := snap.EncodePlugin(only)
				if err != nil {
					return err
				}
				doc = shape.NewMap()
				doc.Set(only, m)
			} else if doc, err = snap.Encode(); err != nil {
				return err
			}

			data, err := layer.MarshalDocument(f, doc)
			if err != nil {
				return errors.Wrapf(err, "failed to marshal configuration to %s", f)
			}
			out := cmd.OutOrStdout()
			if f != layer.FormatJSON {
				fmt.Fprintln(out, "# resolved plugin configuration")
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "toml", "Output format: toml, json, yaml")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "Override an option for this run (plugin.option=value, repeatable)")
	cmd.Flags().StringVar(&only, "plugin", "", "Show only this plugin")
	return cmd
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	var (
		reveal    bool
		overrides []string
	)
	cmd := &cobra.Command{
		Use:   "get <plugin.option>",
		Short: "Get one resolved option",
		Long: `Print the resolved value of one option.

Structured values are printed as JSON. Secret options print their handle
unless --reveal is given, in which case the secrets provider is asked for
the plaintext.`,
		Args: argsExactly(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.setup()
			if err != nil {
				return err
			}
			d, o, err := app.option(args[0])
			if err != nil {
				return err
			}
			snap, err := app.Resolve(overrides)
			if err != nil {
				return err
			}

			var v any
			if reveal {
				v, err = snap.Reveal(cmd.Context(), d.ID, o.Name)
			} else {
				v, err = snap.Get(d.ID, o.Name)
			}
			if err != nil {
				return err
			}
			codec, err := app.Registry.Codec(d.ID)
			if err != nil {
				return err
			}
			enc, err := codec.EncodeField(o.Name, v)
			if err != nil {
				return err
			}
			s, err := formatValue(enc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Resolve secret handles to plaintext")
	cmd.Flags().StringArrayVar(&overrides, "set", nil, "Override an option for this run (plugin.option=value, repeatable)")
	return cmd
}
