package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Info describes the first video stream of a container.
type Info struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        float64       `json:"fps"`
	FrameCount int           `json:"frame_count"`
	Duration   time.Duration `json:"duration"`
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (s *Source) Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not accessible: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:stream_tags=rotate:stream_side_data=rotation:format=duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %v: %s", ErrOpen, err, strings.TrimSpace(stderr.String()))
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode ffprobe output: %v", ErrOpen, err)
	}
	if len(out.Streams) == 0 {
		return nil, fmt.Errorf("%w: no video stream", ErrOpen)
	}

	s := out.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrOpen, s.Width, s.Height)
	}

	// ffmpeg autorotates while decoding, so report the displayed size.
	info := &Info{Width: s.Width, Height: s.Height}
	rotation, _ := strconv.ParseFloat(strings.TrimSpace(s.Tags.Rotate), 64)
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}
	if quarterTurn(rotation) {
		info.Width, info.Height = info.Height, info.Width
	}

	info.FPS = parseRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(s.RFrameRate)
	}

	if secs, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); err == nil && secs > 0 {
		info.Duration = time.Duration(secs * float64(time.Second))
	}

	if n, err := strconv.Atoi(strings.TrimSpace(s.NbFrames)); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.FPS > 0 && info.Duration > 0 {
		// mkv and some avi muxers do not store a frame count
		info.FrameCount = int(info.Duration.Seconds()*info.FPS + 0.5)
	}

	return info, nil
}

func quarterTurn(degrees float64) bool {
	d := int(math.Round(math.Abs(degrees))) % 180
	return d == 90
}

// parseRate parses ffprobe rationals like "30000/1001". "0/0" yields 0.
func parseRate(rate string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(rate), "/")
	if !ok {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0
		}
		return f
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
