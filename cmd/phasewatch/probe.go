package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kdimtricp/phasewatch/internal/video"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <video>",
		Short: "Show the stream information phasewatch reads from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := ctx.cliLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if !video.AllowedExtension(args[0]) {
				return fmt.Errorf("%w: %s", video.ErrUnsupportedFormat, args[0])
			}
			source, err := video.NewSource(0, log)
			if err != nil {
				return err
			}
			info, err := source.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderInfo(args[0], info))
			return nil
		},
	}
}

func renderInfo(path string, info *video.Info) string {
	tw := newTable("Property", "Value")
	tw.AppendRows([]table.Row{
		{"File", path},
		{"Resolution", fmt.Sprintf("%dx%d", info.Width, info.Height)},
		{"FPS", strconv.FormatFloat(info.FPS, 'f', 2, 64)},
		{"Frames", info.FrameCount},
		{"Duration", info.Duration},
	})
	return tw.Render()
}
