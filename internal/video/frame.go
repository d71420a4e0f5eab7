package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Frame is one decoded picture in packed BGR24, row-major, no padding.
type Frame struct {
	Index     int
	Width     int
	Height    int
	Data      []byte
	Timestamp time.Duration
}

func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*3
}

// Image converts the frame to RGBA.
func (f Frame) Image() (*image.RGBA, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid frame %d: %dx%d with %d bytes", f.Index, f.Width, f.Height, len(f.Data))
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i+2]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// FromImage builds a BGR24 frame from any image. Used by tests and by engines that
// hand back decoded pictures.
func FromImage(index int, img image.Image) Frame {
	b := img.Bounds()
	data := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			data = append(data, byte(bl>>8), byte(g>>8), byte(r>>8))
		}
	}
	return Frame{Index: index, Width: b.Dx(), Height: b.Dy(), Data: data}
}

func EncodeJPEG(f Frame, quality int) ([]byte, error) {
	img, err := f.Image()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
