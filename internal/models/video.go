package models

import (
	"time"

	"github.com/google/uuid"
)

// Video is an uploaded file registered for viewing. Only metadata is kept; detections
// live in the viewing session and are never stored.
type Video struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FPS          float64   `json:"fps"`
	FrameCount   int       `json:"frame_count"`
	UploadTime   time.Time `json:"upload_time"`
}

func NewVideo(originalName, filename, contentType string, size int64) *Video {
	return &Video{
		ID:           uuid.New().String(),
		OriginalName: originalName,
		Filename:     filename,
		ContentType:  contentType,
		Size:         size,
		UploadTime:   time.Now(),
	}
}
