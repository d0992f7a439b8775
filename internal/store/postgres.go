package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"idea-engine/internal/models"
)

// Sentinel context strings returned for missing idea source rows.
const (
	MissingVideoTitle  = "Video not found"
	MissingCommentText = "Comment not found"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ClaimUnusedComments atomically selects up to limit of the user's unused
// comments, oldest first, marks them used, and returns them joined with the
// owning video's title. Concurrent claims cannot select overlapping comments:
// the select-and-claim runs as one statement with row locks.
func (s *Store) ClaimUnusedComments(ctx context.Context, userID string, limit int) ([]models.ClaimedComment, error) {
	rows, err := s.pool.Query(ctx, `
		WITH picked AS (
			SELECT c.id, c.comment_text, c.video_id, v.title
			FROM video_comments c
			JOIN videos v ON v.id = c.video_id
			WHERE c.user_id = $1 AND c.is_used = FALSE
			ORDER BY c.created_at ASC
			LIMIT $2
			FOR UPDATE OF c SKIP LOCKED
		)
		UPDATE video_comments vc
		SET is_used = TRUE, updated_at = NOW()
		FROM picked
		WHERE vc.id = picked.id
		RETURNING picked.title, picked.comment_text, picked.video_id, picked.id
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("claim comments: %w", err)
	}
	defer rows.Close()

	var claimed []models.ClaimedComment
	for rows.Next() {
		var c models.ClaimedComment
		if err := rows.Scan(&c.Title, &c.Comment, &c.VideoID, &c.CommentID); err != nil {
			return nil, fmt.Errorf("scan claimed comment: %w", err)
		}
		claimed = append(claimed, c)
	}
	return claimed, rows.Err()
}

// UnclaimComments flips claimed comments back to unused. Compensation path
// for failed kickoffs, taken only when the deployment opts in.
func (s *Store) UnclaimComments(ctx context.Context, userID string, commentIDs []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE video_comments
		SET is_used = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND id = ANY($2)
	`, userID, commentIDs)
	if err != nil {
		return fmt.Errorf("unclaim comments: %w", err)
	}
	return nil
}

// CreateJob records a freshly kicked-off generation job in STARTED state.
func (s *Store) CreateJob(ctx context.Context, userID, kickoffID string) (models.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO crew_jobs (id, user_id, kickoff_id, job_state, processed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
	`, id, userID, kickoffID, models.RawStateStarted, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return models.Job{
		ID:        id,
		UserID:    userID,
		KickoffID: kickoffID,
		State:     models.RawStateStarted,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PendingJobs lists the user's unprocessed jobs still in a non-terminal state.
func (s *Store) PendingJobs(ctx context.Context, userID string) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kickoff_id, job_state, job_result, processed, created_at, updated_at
		FROM crew_jobs
		WHERE user_id = $1 AND processed = FALSE AND job_state = ANY($2)
		ORDER BY created_at ASC
	`, userID, models.NonTerminalStates)
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		var result pgtype.Text
		if err := rows.Scan(&j.ID, &j.UserID, &j.KickoffID, &j.State, &result, &j.Processed, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Result = textPtr(result)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateJobState persists the latest remote state unconditionally. This
// records progress even while the job remains non-terminal.
func (s *Store) UpdateJobState(ctx context.Context, jobID, state string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE crew_jobs SET job_state = $2, updated_at = NOW() WHERE id = $1
	`, jobID, state)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	return nil
}

// CompleteJob records the terminal success state, marks the job processed,
// and inserts its ideas in one transaction. The processed flip is conditional
// on the persisted flag, so a concurrent reconcile racing past the in-memory
// check cannot double-insert: only the caller whose update affects a row
// proceeds. Returns false when the job was already processed.
func (s *Store) CompleteJob(ctx context.Context, jobID, rawResult string, ideas []models.Idea) (bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	tag, err := tx.Exec(ctx, `
		UPDATE crew_jobs
		SET job_state = $3, processed = TRUE, job_result = $2, updated_at = NOW()
		WHERE id = $1 AND processed = FALSE
	`, jobID, rawResult, models.RawStateSuccess)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	now := time.Now().UTC()
	for _, idea := range ideas {
		id := idea.ID
		if id == "" {
			id = uuid.New().String()
		}
		research := idea.Research
		if research == nil {
			research = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ideas (id, user_id, video_id, comment_id, score, video_title, description, research, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, idea.UserID, idea.VideoID, idea.CommentID, idea.Score, idea.VideoTitle, idea.Description, research, now)
		if err != nil {
			return false, fmt.Errorf("insert idea: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// HasPendingJobs reports whether any unprocessed non-terminal job exists for the user.
func (s *Store) HasPendingJobs(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM crew_jobs
			WHERE user_id = $1 AND processed = FALSE AND job_state = ANY($2)
		)
	`, userID, models.NonTerminalStates).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending jobs: %w", err)
	}
	return exists, nil
}

// UsersWithPendingJobs lists distinct users with at least one pending job.
// The poller reconciles each of them per tick.
func (s *Store) UsersWithPendingJobs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM crew_jobs
		WHERE processed = FALSE AND job_state = ANY($1)
	`, models.NonTerminalStates)
	if err != nil {
		return nil, fmt.Errorf("query pending users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListIdeas returns the user's ideas, newest first.
func (s *Store) ListIdeas(ctx context.Context, userID string) ([]models.Idea, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, video_id, comment_id, score, video_title, description, research, created_at
		FROM ideas
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query ideas: %w", err)
	}
	defer rows.Close()

	var ideas []models.Idea
	for rows.Next() {
		var i models.Idea
		if err := rows.Scan(&i.ID, &i.UserID, &i.VideoID, &i.CommentID, &i.Score, &i.VideoTitle, &i.Description, &i.Research, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, i)
	}
	return ideas, rows.Err()
}

// IdeaContext looks up display context for an idea's source video and
// comment. Missing rows yield sentinel strings, never an error.
func (s *Store) IdeaContext(ctx context.Context, videoID, commentID string) (models.IdeaContext, error) {
	out := models.IdeaContext{
		VideoTitle:  MissingVideoTitle,
		CommentText: MissingCommentText,
	}

	var title string
	err := s.pool.QueryRow(ctx, `SELECT title FROM videos WHERE id = $1`, videoID).Scan(&title)
	if err == nil {
		out.VideoTitle = title
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("query video title: %w", err)
	}

	var text string
	err = s.pool.QueryRow(ctx, `SELECT comment_text FROM video_comments WHERE id = $1`, commentID).Scan(&text)
	if err == nil {
		out.CommentText = text
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return out, fmt.Errorf("query comment text: %w", err)
	}

	return out, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
