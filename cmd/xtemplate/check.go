package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Parse templates and report syntax errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine := g.newEngine()
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("error reading %s: %w", path, err)
				}
				tmpl, err := engine.Compile(string(content), nil)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", path)
				if tree {
					fmt.Fprint(out, tmpl.Describe())
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d templates failed to parse", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Print the parsed node tree of each template")
	return cmd
}
