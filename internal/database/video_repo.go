package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kdimtricp/phasewatch/internal/models"
)

var ErrVideoNotFound = errors.New("video not found")

type VideoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) InsertVideo(ctx context.Context, video *models.Video) error {
	query := `
		INSERT INTO videos (
			id, original_name, filename, content_type, size,
			width, height, fps, frame_count, upload_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.conn.ExecContext(ctx, query,
		video.ID,
		video.OriginalName,
		video.Filename,
		video.ContentType,
		video.Size,
		video.Width,
		video.Height,
		video.FPS,
		video.FrameCount,
		video.UploadTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (r *VideoRepository) GetVideoByID(ctx context.Context, id string) (*models.Video, error) {
	query := `
		SELECT id, original_name, filename, content_type, size,
			   width, height, fps, frame_count, upload_time
		FROM videos
		WHERE id = ?`

	video, err := scanVideo(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return video, nil
}

func (r *VideoRepository) ListVideos(ctx context.Context) ([]models.Video, error) {
	query := `
		SELECT id, original_name, filename, content_type, size,
			   width, height, fps, frame_count, upload_time
		FROM videos
		ORDER BY upload_time DESC`

	rows, err := r.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	return videos, nil
}

func (r *VideoRepository) DeleteVideo(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVideoNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	video := &models.Video{}
	err := row.Scan(
		&video.ID,
		&video.OriginalName,
		&video.Filename,
		&video.ContentType,
		&video.Size,
		&video.Width,
		&video.Height,
		&video.FPS,
		&video.FrameCount,
		&video.UploadTime,
	)
	if err != nil {
		return nil, err
	}
	return video, nil
}
