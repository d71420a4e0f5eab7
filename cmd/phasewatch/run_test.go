package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdimtricp/phasewatch/internal/detect/detecttest"
	"github.com/kdimtricp/phasewatch/internal/video"
	"github.com/kdimtricp/phasewatch/internal/video/videotest"
)

func TestDetectPhases(t *testing.T) {
	engine := &detecttest.Engine{Script: map[int][]string{
		2: {"Setup"},
		3: {"Setup", "First Pull"},
		5: {"First Pull"},
	}}

	summary, err := detectPhases(context.Background(), engine, videotest.NewReader(5), 0, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Frames)
	assert.Equal(t, "First Pull", summary.Primary)
	assert.Equal(t, []phaseStat{
		{Label: "Setup", FirstFrame: 2, ActiveFrames: 2, ActiveAtEnd: false},
		{Label: "First Pull", FirstFrame: 3, ActiveFrames: 2, ActiveAtEnd: true},
	}, summary.Phases)

	table := renderSummary(summary)
	assert.Contains(t, table, "Setup")
	assert.Contains(t, table, "First Pull")
	assert.Contains(t, table, "First frame")

	var buf bytes.Buffer
	require.NoError(t, writeSummaryJSON(&buf, summary))
	var decoded runSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, summary, decoded)
}

func TestDetectPhases_NothingDetected(t *testing.T) {
	summary, err := detectPhases(context.Background(), &detecttest.Engine{}, videotest.NewReader(3), 0, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Frames)
	assert.Empty(t, summary.Phases)
	assert.Equal(t, "No phases detected", renderSummary(summary))
}

func TestRenderInfo(t *testing.T) {
	out := renderInfo("lift.mp4", &video.Info{Width: 1920, Height: 1080, FPS: 29.97, FrameCount: 300})
	assert.Contains(t, out, "1920x1080")
	assert.Contains(t, out, "29.97")
	assert.Contains(t, out, "300")
}

func TestNewTable(t *testing.T) {
	tw := newTable("#", "Phase")
	alignNumbers(tw, 1)
	tw.AppendRow(table.Row{7, "Lockout"})
	tw.AppendRow(table.Row{12, "Setup"})
	out := tw.Render()

	assert.Contains(t, out, "Phase", "header case is kept")
	assert.NotContains(t, out, "PHASE")
	assert.Contains(t, out, "│  7 │ Lockout │")
	assert.Contains(t, out, "│ 12 │ Setup   │")
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "probe"})

	root.SetArgs([]string{"probe"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute(), "probe needs exactly one argument")
}
