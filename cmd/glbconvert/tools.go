package main

import (
	"fmt"
	"strings"

	"github.com/lyzr/glbconvert/common/toolcheck"
	"github.com/spf13/cobra"
)

func newToolsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and provision the external engines",
	}

	cmd.AddCommand(newToolsCheckCmd(a))
	cmd.AddCommand(newToolsInstallCmd(a))
	return cmd
}

func newToolsCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report which external tools are available",
		Long: `Probe the converter, gltfpack and Node.js. Exits non-zero when the
converter is missing; a missing gltfpack only disables compression.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(a.outputFlag)
			if err != nil {
				return err
			}

			checker := toolcheck.New(a.runner, toolcheck.OptionsFromConfig(a.cfg.Tools), a.log)
			report := checker.Report(cmd.Context())

			rows := make([][]string, 0, len(report.Tools))
			var missing []string
			for _, t := range report.Tools {
				rows = append(rows, []string{t.Role, t.Name, yesNo(t.Present), yesNo(t.Required)})
				if t.Required && !t.Present {
					missing = append(missing, t.Name)
				}
			}

			if err := printOutput(a.stdout, format, report, []string{"ROLE", "TOOL", "PRESENT", "REQUIRED"}, rows); err != nil {
				return err
			}
			if !report.Ready {
				return fmt.Errorf("required tool missing: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func newToolsInstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install gltfpack through npm if it is missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := toolcheck.OptionsFromConfig(a.cfg.Tools)
			opts.AutoInstall = true

			checker := toolcheck.New(a.runner, opts, a.log)
			if err := checker.EnsureCompressor(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "%s is installed\n", opts.CompressorBin)
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
