package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/spf13/cobra"
)

type profileFlags struct {
	inputFlags
	cpuProfile   string
	memProfile   string
	blockProfile string
	iterations   int
	outputDir    string
}

func newProfileCmd(g *globalFlags) *cobra.Command {
	f := &profileFlags{}
	cmd := &cobra.Command{
		Use:   "profile [TEMPLATE]",
		Short: "Render a template repeatedly and write pprof profiles",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfile(cmd, g, f, args)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&f.memProfile, "memprofile", "", "Write a memory profile to this file")
	cmd.Flags().StringVar(&f.blockProfile, "blockprofile", "", "Write a goroutine blocking profile to this file")
	cmd.Flags().IntVar(&f.iterations, "iterations", 1000, "Number of renders")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "profile", "Directory to store profile output")
	return cmd
}

func runProfile(cmd *cobra.Command, g *globalFlags, f *profileFlags, args []string) error {
	if f.iterations <= 0 {
		return errors.New("--iterations must be positive")
	}
	path, err := f.templatePath(args)
	if err != nil {
		return err
	}
	_, source, err := f.readTemplate(path)
	if err != nil {
		return err
	}
	data, err := f.loadData()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out := cmd.OutOrStdout()
	if f.cpuProfile != "" {
		cpuFile := filepath.Join(f.outputDir, f.cpuProfile)
		file, err := os.Create(cpuFile)
		if err != nil {
			return fmt.Errorf("failed to create CPU profile file: %w", err)
		}
		defer file.Close()
		if err := pprof.StartCPUProfile(file); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		fmt.Fprintf(out, "CPU profiling enabled, writing to %s\n", cpuFile)
	}
	if f.blockProfile != "" {
		runtime.SetBlockProfileRate(1)
		defer runtime.SetBlockProfileRate(0)
	}

	// RenderString goes through the compile cache, as a long-lived caller would.
	engine := g.newEngine()
	fmt.Fprintf(out, "Rendering template %d times\n", f.iterations)
	start := time.Now()
	var result string
	for i := 0; i < f.iterations; i++ {
		if result, err = engine.RenderString(source, data); err != nil {
			return fmt.Errorf("failed to render template: %w", err)
		}
	}
	duration := time.Since(start)
	fmt.Fprintf(out, "Result length: %d\n", len(result))
	fmt.Fprintf(out, "Time taken: %v\n", duration)
	fmt.Fprintf(out, "Average time per iteration: %v\n", duration/time.Duration(f.iterations))

	if f.memProfile != "" {
		if err := writeProfile(f.outputDir, f.memProfile, "heap"); err != nil {
			return err
		}
		fmt.Fprintf(out, "Memory profile written to %s\n", filepath.Join(f.outputDir, f.memProfile))
	}
	if f.blockProfile != "" {
		if err := writeProfile(f.outputDir, f.blockProfile, "block"); err != nil {
			return err
		}
		fmt.Fprintf(out, "Block profile written to %s\n", filepath.Join(f.outputDir, f.blockProfile))
	}
	return nil
}

func writeProfile(dir, name, kind string) error {
	file, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create %s profile file: %w", kind, err)
	}
	defer file.Close()
	if kind == "heap" {
		runtime.GC()
	}
	if err := pprof.Lookup(kind).WriteTo(file, 0); err != nil {
		return fmt.Errorf("failed to write %s profile: %w", kind, err)
	}
	return nil
}
