// Package main provides the glbconvert CLI: one-shot STEP to GLB conversion
// and external tool management.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyzr/glbconvert/common/config"
	"github.com/lyzr/glbconvert/common/logger"
	"github.com/lyzr/glbconvert/common/process"
	"github.com/spf13/cobra"
)

var version = "dev"

// app carries the state shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer
	runner process.Runner

	// Global flags
	logLevel   string
	outputFlag string

	cfg *config.Config
	log *logger.Logger
}

func newApp(stdout, stderr io.Writer, runner process.Runner) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		runner: runner,
	}
}

// setup loads env configuration and builds the stderr logger
func (a *app) setup() error {
	cfg, err := config.Load("glbconvert")
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := a.logLevel
	if level == "" {
		level = cfg.Service.LogLevel
	}
	a.log = logger.NewWithWriter(a.stderr, level, cfg.Service.LogFormat)
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	flags := &convertFlags{}

	rootCmd := &cobra.Command{
		Use:   "glbconvert [input.step output.glb]",
		Short: "Convert STEP/STP CAD files to compressed GLB",
		Long: `glbconvert converts STEP/STP CAD models to binary glTF (GLB) and
optionally compresses the result with gltfpack.

Running it with two positional arguments is shorthand for "glbconvert convert".
Compression failures are reported as warnings and leave the uncompressed GLB.`,
		Version:      version,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := parseOutputFormat(a.outputFlag); err != nil {
				return err
			}
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				cmd.PrintErrln(cmd.UsageString())
				return err
			}
			return a.runConvert(cmd.Context(), args[0], args[1], flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVarP(&a.outputFlag, "output", "o", "table", "Output format: table, json, yaml")
	flags.register(rootCmd)

	rootCmd.AddCommand(newConvertCmd(a))
	rootCmd.AddCommand(newToolsCmd(a))

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(newApp(os.Stdout, os.Stderr, process.NewExecRunner()))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
