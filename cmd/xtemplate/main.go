// Command xtemplate renders, checks and profiles xtemplate templates from the
// command line.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/AlexanderGrooff/xtemplate-go/pkg/xtemplate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	debug bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "xtemplate",
		Short:         "Render logic-light text templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug output on stderr")

	rootCmd.AddCommand(newRenderCmd(g), newCheckCmd(g), newProfileCmd(g))
	return rootCmd
}

// newEngine builds the engine used by a subcommand.
func (g *globalFlags) newEngine() *xtemplate.Engine {
	return xtemplate.NewEngine(xtemplate.WithLogger(g.logger()))
}

// logger writes to stderr; engine diagnostics only show up with --debug.
func (g *globalFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if g.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
