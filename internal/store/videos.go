package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"idea-engine/internal/models"
)

// Ingestion caps comments per video; older surplus is dropped at the seam.
const maxCommentsPerVideo = 100

// InsertVideo records a video delivered by the ingestion collaborator.
func (s *Store) InsertVideo(ctx context.Context, v models.Video) (models.Video, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videos (id, user_id, platform_id, title, description, published_at, thumbnail_url,
			channel_id, channel_title, view_count, like_count, comment_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	`, v.ID, v.UserID, v.PlatformID, v.Title, v.Description, v.PublishedAt, v.ThumbnailURL,
		v.ChannelID, v.ChannelTitle, v.ViewCount, v.LikeCount, v.CommentCount, now)
	if err != nil {
		return models.Video{}, fmt.Errorf("insert video: %w", err)
	}
	return v, nil
}

// InsertComments records comments for a video, capped at maxCommentsPerVideo
// counting rows already stored. Returns the number actually inserted.
func (s *Store) InsertComments(ctx context.Context, videoID string, comments []models.Comment) (int, error) {
	var existing int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM video_comments WHERE video_id = $1
	`, videoID).Scan(&existing)
	if err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	room := maxCommentsPerVideo - existing
	if room <= 0 {
		return 0, nil
	}
	if len(comments) > room {
		comments = comments[:room]
	}

	now := time.Now().UTC()
	for _, c := range comments {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO video_comments (id, video_id, user_id, comment_text, like_count, published_at, is_used, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $7)
		`, id, videoID, c.UserID, c.Text, c.LikeCount, c.PublishedAt, now)
		if err != nil {
			return 0, fmt.Errorf("insert comment: %w", err)
		}
	}
	return len(comments), nil
}

// ListVideos returns all of the user's tracked videos.
func (s *Store) ListVideos(ctx context.Context, userID string) ([]models.Video, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, platform_id, title, description, published_at, thumbnail_url,
			channel_id, channel_title, view_count, like_count, comment_count, created_at, updated_at
		FROM videos
		WHERE user_id = $1
		ORDER BY published_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// VideoWithComments fetches one of the user's videos and its comments ordered
// by publish time. Returns pgx.ErrNoRows when the video is absent or belongs
// to another user.
func (s *Store) VideoWithComments(ctx context.Context, userID, videoID string) (models.Video, []models.Comment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, platform_id, title, description, published_at, thumbnail_url,
			channel_id, channel_title, view_count, like_count, comment_count, created_at, updated_at
		FROM videos
		WHERE id = $1 AND user_id = $2
	`, videoID, userID)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, nil, pgx.ErrNoRows
		}
		return models.Video{}, nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, video_id, user_id, comment_text, like_count, published_at, is_used, created_at, updated_at
		FROM video_comments
		WHERE video_id = $1
		ORDER BY published_at ASC
	`, videoID)
	if err != nil {
		return models.Video{}, nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Text, &c.LikeCount, &c.PublishedAt, &c.Used, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return models.Video{}, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return video, comments, rows.Err()
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.UserID, &v.PlatformID, &v.Title, &v.Description, &v.PublishedAt, &v.ThumbnailURL,
		&v.ChannelID, &v.ChannelTitle, &v.ViewCount, &v.LikeCount, &v.CommentCount, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, pgx.ErrNoRows
		}
		return models.Video{}, fmt.Errorf("scan video: %w", err)
	}
	return v, nil
}
