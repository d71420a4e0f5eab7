package video

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Decoder reads raw BGR24 frames from an ffmpeg child process.
type Decoder struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	r      *bufio.Reader
	stderr bytes.Buffer

	info   Info
	width  int
	height int
	index  int
	done   bool
	reaped bool
}

func startDecoder(ctx context.Context, ffmpegPath, path string, info Info, width, height int) (*Decoder, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-an",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-",
	}
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	d := &Decoder{
		cmd:    cmd,
		cancel: cancel,
		info:   info,
		width:  width,
		height: height,
	}
	cmd.Stderr = &d.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrOpen, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrOpen, err)
	}
	d.stdout = stdout
	d.r = bufio.NewReaderSize(stdout, width*height*3)

	return d, nil
}

// Info reports the source stream, with Width/Height replaced by the decoded output size.
func (d *Decoder) Info() Info {
	info := d.info
	info.Width = d.width
	info.Height = d.height
	return info
}

func (d *Decoder) Next() (Frame, error) {
	if d.done {
		return Frame{}, io.EOF
	}

	buf := make([]byte, d.width*d.height*3)
	_, err := io.ReadFull(d.r, buf)
	if err != nil {
		d.done = true
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, d.finish()
		}
		return Frame{}, fmt.Errorf("%w: read frame %d: %v", ErrDecode, d.index+1, err)
	}

	d.index++
	return Frame{
		Index:     d.index,
		Width:     d.width,
		Height:    d.height,
		Data:      buf,
		Timestamp: frameTimestamp(d.index, d.info.FPS),
	}, nil
}

// finish reaps ffmpeg at end of stream. A clean exit is io.EOF; a failure before
// any frame was produced means the file could not be decoded at all.
func (d *Decoder) finish() error {
	d.reaped = true
	err := d.cmd.Wait()
	d.cancel()
	if err == nil {
		return io.EOF
	}
	msg := strings.TrimSpace(d.stderr.String())
	if d.index == 0 {
		return fmt.Errorf("%w: ffmpeg: %v: %s", ErrOpen, err, msg)
	}
	return fmt.Errorf("%w: ffmpeg exited after %d frames: %v: %s", ErrDecode, d.index, err, msg)
}

// Close kills ffmpeg if it is still running and reaps it. It is safe to call after
// Next has returned an error.
func (d *Decoder) Close() error {
	d.done = true
	if d.reaped {
		return nil
	}
	d.reaped = true
	d.cancel()
	d.stdout.Close()
	_ = d.cmd.Wait()
	return nil
}

func frameTimestamp(index int, fps float64) time.Duration {
	if fps <= 0 || index <= 0 {
		return 0
	}
	return time.Duration(float64(index-1) / fps * float64(time.Second))
}
