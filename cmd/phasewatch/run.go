package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kdimtricp/phasewatch/internal/app"
	"github.com/kdimtricp/phasewatch/internal/detect"
	"github.com/kdimtricp/phasewatch/internal/phase"
	"github.com/kdimtricp/phasewatch/internal/pipeline"
	"github.com/kdimtricp/phasewatch/internal/video"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var realtime bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Run detection over a video without the web UI and print the phases seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.cliLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, err := app.NewEngine(runCtx, cfg, log)
			if err != nil {
				return err
			}
			defer engine.Close()

			source, err := video.NewSource(cfg.MaxVideoWidth, log)
			if err != nil {
				return err
			}
			reader, err := source.Open(runCtx, args[0])
			if err != nil {
				return err
			}
			defer reader.Close()

			var delay time.Duration
			if realtime {
				delay = cfg.FrameDelay
			}

			out := cmd.OutOrStdout()
			if !jsonOutput {
				info := reader.Info()
				fmt.Fprintf(out, "Video loaded: %d frames @ %d FPS\n", info.FrameCount, int(math.Round(info.FPS)))
			}

			summary, err := detectPhases(runCtx, engine, reader, delay, log)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeSummaryJSON(out, summary)
			}
			fmt.Fprintf(out, "Video processing complete! Processed %d frames.\n", summary.Frames)
			fmt.Fprintln(out, renderSummary(summary))
			return nil
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Pause between frames as the web view does")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")
	return cmd
}

type phaseStat struct {
	Label        string `json:"label"`
	FirstFrame   int    `json:"first_frame"`
	ActiveFrames int    `json:"active_frames"`
	ActiveAtEnd  bool   `json:"active_at_end"`
}

type runSummary struct {
	Frames  int         `json:"frames"`
	Primary string      `json:"primary,omitempty"`
	Phases  []phaseStat `json:"phases"`
}

// detectPhases drives one pass over reader and tallies how often each phase was active.
func detectPhases(ctx context.Context, engine detect.Engine, reader video.FrameReader, delay time.Duration, log *zap.Logger) (runSummary, error) {
	tracker := phase.NewTracker()
	stats := make(map[string]*phaseStat)

	sink := func(_ context.Context, out pipeline.FrameOutput) error {
		for _, entry := range out.Snapshot.Phases {
			st, ok := stats[entry.Label]
			if !ok {
				st = &phaseStat{Label: entry.Label, FirstFrame: out.Frame.Index}
				stats[entry.Label] = st
			}
			if entry.Active {
				st.ActiveFrames++
			}
		}
		return nil
	}

	frames, err := pipeline.New(engine, delay, log).Run(ctx, reader, tracker, sink)
	if err != nil {
		return runSummary{}, err
	}

	summary := runSummary{Frames: frames, Phases: make([]phaseStat, 0, tracker.Len())}
	summary.Primary, _ = tracker.CurrentPrimaryLabel()
	for _, label := range tracker.Order() {
		st := *stats[label]
		st.ActiveAtEnd = tracker.IsActive(label)
		summary.Phases = append(summary.Phases, st)
	}
	return summary, nil
}

func renderSummary(s runSummary) string {
	if len(s.Phases) == 0 {
		return "No phases detected"
	}
	tw := newTable("#", "Phase", "First frame", "Frames", "Last frame")
	alignNumbers(tw, 1, 3, 4)
	for i, p := range s.Phases {
		current := ""
		if p.ActiveAtEnd {
			current = "*"
		}
		tw.AppendRow(table.Row{i + 1, p.Label, p.FirstFrame, p.ActiveFrames, current})
	}
	return tw.Render()
}

func writeSummaryJSON(w io.Writer, s runSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
