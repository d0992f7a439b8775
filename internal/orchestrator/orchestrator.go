// Package orchestrator owns the generation job lifecycle: claiming comment
// batches, kicking off remote jobs, and reconciling their results into ideas.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"idea-engine/internal/crewai"
	"idea-engine/internal/models"
	"idea-engine/internal/telemetry"
)

// ErrNoWorkAvailable is returned by Submit when the user has no unused
// comments. Nothing is mutated in that case.
var ErrNoWorkAvailable = errors.New("no unused comments available to generate ideas")

// ErrResultParseFailed marks a success payload that could not be decoded.
// The job stays unprocessed so the next reconciliation pass retries it.
var ErrResultParseFailed = errors.New("malformed generation result payload")

// Store is the durable-state surface the orchestrator depends on.
// *store.Store satisfies it.
type Store interface {
	ClaimUnusedComments(ctx context.Context, userID string, limit int) ([]models.ClaimedComment, error)
	UnclaimComments(ctx context.Context, userID string, commentIDs []string) error
	CreateJob(ctx context.Context, userID, kickoffID string) (models.Job, error)
	PendingJobs(ctx context.Context, userID string) ([]models.Job, error)
	UpdateJobState(ctx context.Context, jobID, state string) error
	CompleteJob(ctx context.Context, jobID, rawResult string, ideas []models.Idea) (bool, error)
	HasPendingJobs(ctx context.Context, userID string) (bool, error)
}

// RemoteClient is the generation-service protocol surface.
// *crewai.Client satisfies it.
type RemoteClient interface {
	Kickoff(ctx context.Context, comments string) (string, error)
	Status(ctx context.Context, kickoffID string) (crewai.StatusResponse, error)
}

// Archiver persists raw success payloads out of band. Optional.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

// Options tune orchestrator behavior.
type Options struct {
	// BatchSize caps how many comments one submission claims. Defaults to 50.
	BatchSize int
	// UnclaimOnSubmitFailure releases claimed comments when the remote
	// kickoff fails. Off by default: the claim is kept, trading lost comments
	// for never double-submitting a batch.
	UnclaimOnSubmitFailure bool
}

// Orchestrator coordinates comment claiming, remote kickoff, and result
// reconciliation. Stateless across calls; safe for concurrent use.
type Orchestrator struct {
	store    Store
	client   RemoteClient
	archiver Archiver
	opts     Options
}

func New(st Store, client RemoteClient, archiver Archiver, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Orchestrator{store: st, client: client, archiver: archiver, opts: opts}
}

// Submit claims a batch of the user's oldest unused comments, submits them to
// the generation service, and records the job in STARTED state. The claim
// commits before the remote call: a slow kickoff can never let a second
// submission pick up the same comments.
func (o *Orchestrator) Submit(ctx context.Context, userID string) (models.Job, error) {
	claimed, err := o.store.ClaimUnusedComments(ctx, userID, o.opts.BatchSize)
	if err != nil {
		return models.Job{}, fmt.Errorf("claim comments: %w", err)
	}
	if len(claimed) == 0 {
		return models.Job{}, ErrNoWorkAvailable
	}
	telemetry.CommentsClaimed.Add(float64(len(claimed)))

	payload, err := json.Marshal(claimed)
	if err != nil {
		return models.Job{}, fmt.Errorf("serialize comment batch: %w", err)
	}

	kickoffID, err := o.client.Kickoff(ctx, string(payload))
	if err != nil {
		telemetry.SubmissionFailures.Inc()
		if o.opts.UnclaimOnSubmitFailure {
			ids := make([]string, len(claimed))
			for i, c := range claimed {
				ids[i] = c.CommentID
			}
			if unclaimErr := o.store.UnclaimComments(ctx, userID, ids); unclaimErr != nil {
				slog.Error("unclaim after failed kickoff", "user_id", userID, "count", len(ids), "error", unclaimErr)
			}
		}
		return models.Job{}, err
	}

	job, err := o.store.CreateJob(ctx, userID, kickoffID)
	if err != nil {
		return models.Job{}, fmt.Errorf("record job: %w", err)
	}
	telemetry.GenerationsSubmitted.Inc()
	slog.Info("generation job kicked off", "user_id", userID, "kickoff_id", kickoffID, "comments", len(claimed))
	return job, nil
}

// Reconcile polls every pending job for the user and applies any terminal
// success. Idempotent: safe to invoke repeatedly, concurrently, or on a
// timer. One job's failure never blocks another's progress.
func (o *Orchestrator) Reconcile(ctx context.Context, userID string) error {
	jobs, err := o.store.PendingJobs(ctx, userID)
	if err != nil {
		return fmt.Errorf("load pending jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}
	telemetry.ReconcilePasses.Inc()

	for _, job := range jobs {
		if err := o.reconcileJob(ctx, job); err != nil {
			// Skipped this pass; the job stays non-terminal and the next
			// pass retries it.
			slog.Warn("reconcile job skipped", "job_id", job.ID, "kickoff_id", job.KickoffID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) reconcileJob(ctx context.Context, job models.Job) error {
	status, err := o.client.Status(ctx, job.KickoffID)
	if err != nil {
		telemetry.StatusFetchFailures.Inc()
		return err
	}

	if models.ParseJobState(status.State) != models.StateSucceeded {
		// Record progress even while non-terminal.
		if err := o.store.UpdateJobState(ctx, job.ID, status.State); err != nil {
			return fmt.Errorf("persist job state: %w", err)
		}
		return nil
	}

	ideas, err := parseResult(job.UserID, status.Result)
	if err != nil {
		// The success state is deliberately not persisted here: the job must
		// stay in the non-terminal set so the next pass retries the parse.
		telemetry.ResultParseFailures.Inc()
		return err
	}

	if o.archiver != nil {
		key := fmt.Sprintf("results/%s/%s.json", job.UserID, job.KickoffID)
		if err := o.archiver.Archive(ctx, key, []byte(status.Result)); err != nil {
			// Archival is best effort and never holds up completion.
			slog.Warn("archive result payload", "job_id", job.ID, "error", err)
		}
	}

	completed, err := o.store.CompleteJob(ctx, job.ID, status.Result, ideas)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if !completed {
		// Another reconcile won the race; its idea rows are already in.
		return nil
	}
	telemetry.JobsCompleted.Inc()
	telemetry.IdeasInserted.Add(float64(len(ideas)))
	slog.Info("generation job completed", "job_id", job.ID, "kickoff_id", job.KickoffID, "ideas", len(ideas))
	return nil
}

// HasUnprocessedJobs reports whether any of the user's jobs is still pending.
// Pure read.
func (o *Orchestrator) HasUnprocessedJobs(ctx context.Context, userID string) (bool, error) {
	return o.store.HasPendingJobs(ctx, userID)
}

// ideaRecord mirrors one entry of the remote result payload.
type ideaRecord struct {
	Score       *int   `json:"score"`
	VideoTitle  string `json:"video_title"`
	Description string `json:"description"`
	VideoID     string `json:"video_id"`
	CommentID   string `json:"comment_id"`
	Research    []struct {
		URL string `json:"url"`
	} `json:"research"`
}

// parseResult decodes a terminal-success payload into idea rows. Missing
// scores default to 0 and missing research lists to empty.
func parseResult(userID, raw string) ([]models.Idea, error) {
	var records []ideaRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResultParseFailed, err)
	}

	ideas := make([]models.Idea, 0, len(records))
	for _, rec := range records {
		score := 0
		if rec.Score != nil {
			score = *rec.Score
		}
		research := make([]string, 0, len(rec.Research))
		for _, r := range rec.Research {
			research = append(research, r.URL)
		}
		ideas = append(ideas, models.Idea{
			UserID:      userID,
			VideoID:     rec.VideoID,
			CommentID:   rec.CommentID,
			Score:       score,
			VideoTitle:  rec.VideoTitle,
			Description: rec.Description,
			Research:    research,
		})
	}
	return ideas, nil
}
