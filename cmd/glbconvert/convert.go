package main

import (
	"context"
	"fmt"

	"github.com/lyzr/glbconvert/common/compress"
	"github.com/lyzr/glbconvert/common/convert"
	"github.com/lyzr/glbconvert/common/pipeline"
	"github.com/lyzr/glbconvert/common/quality"
	"github.com/lyzr/glbconvert/common/toolcheck"
	"github.com/spf13/cobra"
)

// convertFlags are shared by the root shorthand and the convert subcommand
type convertFlags struct {
	noCompress       bool
	compressionLevel string
	quality          string
}

func (f *convertFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noCompress, "no-compress", false, "Disable Draco compression")
	cmd.Flags().StringVar(&f.compressionLevel, "compression-level", fmt.Sprint(quality.DefaultLevel),
		fmt.Sprintf("Compression level (%d-%d); %d and above uses advanced compression", quality.MinLevel, quality.MaxLevel, quality.AdvancedThreshold))
	cmd.Flags().StringVar(&f.quality, "quality", string(quality.ProfileMedium), "Tessellation quality: low, medium, high")
}

func newConvertCmd(a *app) *cobra.Command {
	flags := &convertFlags{}

	cmd := &cobra.Command{
		Use:   "convert <input.step> <output.glb>",
		Short: "Convert a STEP/STP file to GLB",
		Long: `Convert a STEP/STP file to GLB. Unless --no-compress is given, the GLB
is then compressed in place with gltfpack. If compression fails the
uncompressed GLB is kept and a warning is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runConvert(cmd.Context(), args[0], args[1], flags)
		},
	}

	flags.register(cmd)
	return cmd
}

// convertSummary is the structured report printed after a conversion
type convertSummary struct {
	Input          string  `json:"input" yaml:"input"`
	Output         string  `json:"output" yaml:"output"`
	InputMB        float64 `json:"input_mb" yaml:"input_mb"`
	ConvertedMB    float64 `json:"converted_mb" yaml:"converted_mb"`
	ConvertSeconds float64 `json:"convert_seconds" yaml:"convert_seconds"`
	ThroughputMBps float64 `json:"throughput_mbps" yaml:"throughput_mbps"`

	Compressed      bool    `json:"compressed" yaml:"compressed"`
	CompressionMode string  `json:"compression_mode,omitempty" yaml:"compression_mode,omitempty"`
	CompressSeconds float64 `json:"compress_seconds,omitempty" yaml:"compress_seconds,omitempty"`
	RatioPercent    float64 `json:"ratio_percent,omitempty" yaml:"ratio_percent,omitempty"`

	FinalMB float64 `json:"final_mb" yaml:"final_mb"`
	Outcome string  `json:"outcome" yaml:"outcome"`
	Warning string  `json:"warning,omitempty" yaml:"warning,omitempty"`
}

func (a *app) newPipeline() *pipeline.Pipeline {
	tools := toolcheck.New(a.runner, toolcheck.OptionsFromConfig(a.cfg.Tools), a.log)
	return pipeline.New(&pipeline.Opts{
		Converter:  convert.New(a.runner, convert.OptionsFromConfig(a.cfg.Tools), a.log),
		Compressor: compress.New(a.runner, tools, compress.OptionsFromConfig(a.cfg), a.log),
		Logger:     a.log,
	})
}

func (a *app) runConvert(ctx context.Context, input, output string, flags *convertFlags) error {
	format, err := parseOutputFormat(a.outputFlag)
	if err != nil {
		return err
	}

	opts := pipeline.DefaultOptions()
	opts.Quality = flags.quality
	opts.Compress = !flags.noCompress

	level, warning := quality.ParseCLILevel(flags.compressionLevel)
	if warning != "" {
		fmt.Fprintf(a.stderr, "Warning: %s\n", warning)
	}
	opts.CompressionLevel = level

	res, err := a.newPipeline().ConvertFile(ctx, input, output, opts)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	summary := summarize(input, output, res)
	if res.CompressionError != nil {
		summary.Warning = fmt.Sprintf("compression failed, kept uncompressed file: %v", res.CompressionError)
		fmt.Fprintf(a.stderr, "Warning: %s\n", summary.Warning)
	}

	return printOutput(a.stdout, format, summary, nil, summaryRows(summary))
}

func summarize(input, output string, res *pipeline.Result) convertSummary {
	s := convertSummary{
		Input:   input,
		Output:  output,
		FinalMB: toMB(res.Size),
		Outcome: string(res.Outcome),
	}
	if conv := res.Conversion; conv != nil {
		s.InputMB = toMB(conv.SourceSize)
		s.ConvertedMB = toMB(conv.OutputSize)
		s.ConvertSeconds = conv.Duration.Seconds()
		s.ThroughputMBps = conv.ThroughputMBps()
	}
	if comp := res.Compression; comp != nil {
		s.Compressed = true
		s.CompressionMode = string(comp.Mode)
		s.CompressSeconds = comp.Duration.Seconds()
		s.RatioPercent = comp.Ratio
	}
	return s
}

func summaryRows(s convertSummary) [][]string {
	rows := [][]string{
		{"Input:", s.Input},
		{"Output:", s.Output},
		{"Input size:", fmt.Sprintf("%.2f MB", s.InputMB)},
		{"Converted size:", fmt.Sprintf("%.2f MB", s.ConvertedMB)},
		{"Conversion time:", fmt.Sprintf("%.2f s", s.ConvertSeconds)},
		{"Throughput:", fmt.Sprintf("%.2f MB/s", s.ThroughputMBps)},
	}
	if s.Compressed {
		rows = append(rows,
			[]string{"Compression:", s.CompressionMode},
			[]string{"Compression time:", fmt.Sprintf("%.2f s", s.CompressSeconds)},
			[]string{"Reduction:", fmt.Sprintf("%.1f%%", s.RatioPercent)},
		)
	}
	rows = append(rows, []string{"Final size:", fmt.Sprintf("%.2f MB", s.FinalMB)})
	return rows
}

func toMB(size int64) float64 {
	return float64(size) / (1024 * 1024)
}
