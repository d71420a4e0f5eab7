package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/kdimtricp/phasewatch/internal/video"
)

var ErrInvalidPath = errors.New("invalid path")

type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// SaveFile copies the upload under a fresh uuid name, keeping the original extension.
func (ls *LocalStorage) SaveFile(file io.Reader, info FileInfo) (string, error) {
	if !video.AllowedExtension(info.Filename) {
		return "", fmt.Errorf("%w: %q", video.ErrUnsupportedFormat, filepath.Ext(info.Filename))
	}
	ext := strings.ToLower(filepath.Ext(info.Filename))

	filename := fmt.Sprintf("%s%s", uuid.New().String(), ext)
	fullPath := filepath.Join(ls.basePath, filename)

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}

func (ls *LocalStorage) Path(name string) (string, error) {
	cleanPath := filepath.Clean(name)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", ErrInvalidPath
	}
	return filepath.Join(ls.basePath, cleanPath), nil
}

func (ls *LocalStorage) OpenFile(name string) (io.ReadSeekCloser, error) {
	fullPath, err := ls.Path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

func (ls *LocalStorage) DeleteFile(name string) error {
	fullPath, err := ls.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Purge removes every stored upload. Called on shutdown.
func (ls *LocalStorage) Purge() error {
	entries, err := os.ReadDir(ls.basePath)
	if err != nil {
		return fmt.Errorf("failed to read storage directory: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(ls.basePath, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
