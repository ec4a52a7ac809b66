package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Paintersrp/procwatch/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the watch file with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			return printConfig(cmd, doc)
		},
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a watch file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.loadConfig(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", *ctx.configFile)
			return nil
		},
	}
	return cmd
}

// printConfig writes doc as YAML with working directories resolved.
func printConfig(cmd *cobra.Command, doc *config.File) error {
	resolved := *doc
	resolved.Processes = make(map[string]*config.ProcessSpec, len(doc.Processes))
	for name, spec := range doc.Processes {
		dup := spec.Clone()
		dup.Workdir = dup.ResolvedWorkdir
		resolved.Processes[name] = dup
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(&resolved); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
