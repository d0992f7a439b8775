package models

import (
	"time"
)

// Video is a tracked video row. Written by the external ingestion
// collaborator; the core only reads it for join context.
type Video struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	PlatformID   string    `json:"platform_id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	ViewCount    int       `json:"view_count"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Comment belongs to exactly one video. Used transitions false->true once,
// when the orchestrator claims the comment for a generation batch.
type Comment struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	LikeCount   int       `json:"like_count"`
	PublishedAt time.Time `json:"published_at"`
	Used        bool      `json:"used"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClaimedComment is a claimed comment joined with its video's title,
// as serialized into the generation payload.
type ClaimedComment struct {
	Title     string `json:"title"`
	Comment   string `json:"comment"`
	VideoID   string `json:"video_id"`
	CommentID string `json:"comment_id"`
}

// Idea is one scored content suggestion produced by a generation job.
// Immutable after insertion.
type Idea struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	VideoID     string    `json:"video_id"`
	CommentID   string    `json:"comment_id"`
	Score       int       `json:"score"`
	VideoTitle  string    `json:"video_title"`
	Description string    `json:"description"`
	Research    []string  `json:"research"`
	CreatedAt   time.Time `json:"created_at"`
}

// IdeaContext is display context for an idea, looked up by its source
// references. Missing rows yield sentinel strings rather than errors.
type IdeaContext struct {
	VideoTitle  string `json:"video_title"`
	CommentText string `json:"comment_text"`
}
