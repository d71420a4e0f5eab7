package storage

import (
	"io"
)

type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage holds the transient copies of uploaded videos.
type Storage interface {
	SaveFile(file io.Reader, info FileInfo) (string, error)
	OpenFile(name string) (io.ReadSeekCloser, error)
	Path(name string) (string, error)
	DeleteFile(name string) error
}
