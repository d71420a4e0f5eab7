// Package videotest provides in-memory frame readers for tests.
package videotest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kdimtricp/phasewatch/internal/video"
)

// Reader yields Count solid grey frames of Width x Height, then io.EOF, or Err if set.
type Reader struct {
	Width, Height int
	Count         int
	FPS           float64
	Err           error

	mu     sync.Mutex
	next   int
	closed bool
}

func NewReader(count int) *Reader {
	return &Reader{Width: 4, Height: 2, Count: count, FPS: 25}
}

func (r *Reader) Next() (video.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return video.Frame{}, errors.New("reader closed")
	}
	if r.next >= r.Count {
		if r.Err != nil {
			return video.Frame{}, r.Err
		}
		return video.Frame{}, io.EOF
	}
	r.next++
	data := make([]byte, r.Width*r.Height*3)
	for i := range data {
		data[i] = 0x80
	}
	var ts time.Duration
	if r.FPS > 0 {
		ts = time.Duration(float64(r.next-1) / r.FPS * float64(time.Second))
	}
	return video.Frame{Index: r.next, Width: r.Width, Height: r.Height, Data: data, Timestamp: ts}, nil
}

func (r *Reader) Info() video.Info {
	return video.Info{Width: r.Width, Height: r.Height, FPS: r.FPS, FrameCount: r.Count}
}

func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *Reader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Opener hands out a fresh Reader from New on every Open, or fails with Err. When
// Gate is set, Open waits for a value on it first.
type Opener struct {
	New  func() *Reader
	Err  error
	Gate chan struct{}

	mu    sync.Mutex
	opens []string
}

func (o *Opener) Open(ctx context.Context, path string) (video.FrameReader, error) {
	o.mu.Lock()
	o.opens = append(o.opens, path)
	o.mu.Unlock()
	if o.Gate != nil {
		select {
		case <-o.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.New(), nil
}

// Opens returns the paths passed to Open so far.
func (o *Opener) Opens() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.opens...)
}
